// Package record tokenizes and decodes atop parseable-output lines.
//
// A line is split on whitespace runs, except whitespace enclosed in
// parentheses: atop wraps free-form fields such as the process name and the
// command line in "(...)" and those may contain spaces.
//
//	PRG host 1607000000 2020/12/03 14:13:20 10 4242 (my worker) S 1000 1000 4242 ...
//	                                             ^^^^^^^^^^^ one token
//
// Splitting is bounded by the highest field index the caller asked for, so
// long command lines past that index are never scanned.
//
// Every data line yields a Result: a decoded Sample, or a SkipError carrying
// the reason. Stream.Each records skips in the run-level diag.Log and keeps
// going.
package record
