// logengine/cmd/logengine/fileoutput.go

package main

import (
	"os"
	"strings"
)

// logFileWriter implements runtime.FileWriter, the output-buffering
// helper named as an external collaborator in §1: WRITE_BUFFER_TO_FILES
// and WRITE_LIST_TO_FILES append to "<logfile>.out" alongside the log
// file whose line is being processed when the builtin is called.
type logFileWriter struct{}

func (logFileWriter) WriteBuffer(logfile, text string) error {
	return appendToOutputFile(logfile, text)
}

func (logFileWriter) WriteList(logfile string, items []string) error {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item)
		sb.WriteByte('\n')
	}
	return appendToOutputFile(logfile, sb.String())
}

func appendToOutputFile(logfile, text string) error {
	f, err := os.OpenFile(logfile+".out", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(text)
	return err
}
