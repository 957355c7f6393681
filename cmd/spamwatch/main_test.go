package main

import (
	"os"
	"testing"

	"github.com/alfredjeanlab/spamwatch/internal/ui"
)

func TestMain(m *testing.M) {
	ui.SetColor(false)
	os.Exit(m.Run())
}
