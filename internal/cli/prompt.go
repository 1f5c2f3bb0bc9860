package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// promptPassword reads a secret without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptConfirm asks a yes/no question. Anything but y/yes is a no.
func promptConfirm(reader *bufio.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// promptRowIndex asks for a 1-based row number. An empty answer returns 0.
func promptRowIndex(reader *bufio.Reader, out io.Writer, rows int) (int, error) {
	for {
		fmt.Fprintf(out, "Row to clean up [1-%d, empty to quit]: ", rows)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return 0, err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			return 0, nil
		}
		n, convErr := strconv.Atoi(input)
		if convErr == nil && n >= 1 && n <= rows {
			return n, nil
		}
		if err == io.EOF {
			return 0, nil
		}
		fmt.Fprintln(out, "Invalid choice, please try again.")
	}
}
