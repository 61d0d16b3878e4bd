// Package logs reads the genqueue log file for the `genqueue logs` command.
//
// It returns the last N lines with bounded memory, follows the file from a
// byte offset as new lines arrive, and can narrow output to the lines that
// mention one job in either the console or JSON log format.
package logs
