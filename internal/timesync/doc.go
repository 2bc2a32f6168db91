// Package timesync converts atop sample epochs to wall-clock time.
//
// atop writes every sample twice: as epoch seconds and as the local date and
// time of the recording host. Comparing both on one line gives the host's UTC
// offset, so reports can show the times an operator saw on that machine.
package timesync
