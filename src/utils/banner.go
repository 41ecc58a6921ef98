package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// getTerminalWidth returns terminal width, defaulting to 80
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		return 80
	}
	return width
}

// getBinaryName returns the actual binary name
func getBinaryName() string {
	return filepath.Base(os.Args[0])
}

// DisplayInstallerBanner prints where the wizard is reachable.
// The layout adapts to terminal width.
func DisplayInstallerBanner(version string, port int, basePath, appRoot string, installed bool) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}

	url := fmt.Sprintf("http://%s:%d%s", hostname, port, basePath)
	binaryName := getBinaryName()

	status := "Waiting for installation"
	if installed {
		status = "Already installed (append ?force=1 to reinstall)"
	}

	switch width := getTerminalWidth(); {
	case width >= 80:
		printBannerFull(binaryName, version, url, appRoot, status)
	case width >= 40:
		fmt.Printf("%s %s v%s\n", GetRocket(), binaryName, version)
		fmt.Printf("%s %s\n", GetGlobe(), url)
		fmt.Println(status)
	default:
		fmt.Printf("%s :%d\n", binaryName, port)
	}
}

func printBannerFull(binaryName, version, url, appRoot, status string) {
	const width = 65

	fmt.Println()
	fmt.Println("╔" + strings.Repeat("═", width) + "╗")
	fmt.Printf("║%s║\n", centerText(fmt.Sprintf("%s v%s - Installer", binaryName, version), width))
	fmt.Println("║" + strings.Repeat(" ", width) + "║")
	fmt.Printf("║  Wizard:  %-53s ║\n", url)
	fmt.Printf("║  Root:    %-53s ║\n", truncate(appRoot, 53))
	fmt.Println("║" + strings.Repeat(" ", width) + "║")
	fmt.Printf("║  %-62s ║\n", status)
	fmt.Println("╚" + strings.Repeat("═", width) + "╝")
	fmt.Println()
}

// centerText centers text within a given width
func centerText(text string, width int) string {
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	leftPad := padding / 2
	return strings.Repeat(" ", leftPad) + text + strings.Repeat(" ", padding-leftPad)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
