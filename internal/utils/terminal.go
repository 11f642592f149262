package utils

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SupportsInlineImages reports whether the terminal understands the iTerm2
// inline image escape sequence (iTerm2, WezTerm and VSCode do)
func SupportsInlineImages() bool {
	if !IsTerminal(os.Stdout) {
		return false
	}
	switch os.Getenv("TERM_PROGRAM") {
	case "iTerm.app", "WezTerm", "vscode":
		return true
	}
	return false
}

// WriteInlineImage writes img using the iTerm2 inline image escape sequence
func WriteInlineImage(w io.Writer, img []byte, width, height int) error {
	_, err := fmt.Fprintf(w, "\033]1337;File=inline=1;size=%d;width=%dpx;height=%dpx:%s\a\n",
		len(img), width, height, base64.StdEncoding.EncodeToString(img))
	return err
}
