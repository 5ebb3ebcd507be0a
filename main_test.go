package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic_WritesLog(t *testing.T) {
	defer resetMocks()

	var written []byte
	var path string
	osWriteFile = func(name string, data []byte, _ os.FileMode) error {
		path, written = name, data
		return nil
	}
	code := -1
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("browser went away")
	}()

	assert.Equal(t, 2, code)
	assert.Equal(t, panicLogFile, path)
	require.NotEmpty(t, written)
	assert.Contains(t, string(written), "panic: browser went away")
	assert.Contains(t, string(written), "goroutine")
}

func TestHandlePanic_LogWriteFails(t *testing.T) {
	defer resetMocks()

	osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
	code := -1
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("boom")
	}()
	assert.Equal(t, 2, code)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	defer resetMocks()
	called := false
	osExit = func(int) { called = true }

	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
