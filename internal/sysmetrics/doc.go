// Package sysmetrics reads the system-wide view of an atop recording from
// atopsar reports: CPU, memory, disk and GPU series, and the top-3 processes
// per resource at every sample.
//
// Series can be written out as CSV and imported back, so a report can be
// re-rendered without the raw log.
package sysmetrics
