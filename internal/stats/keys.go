package stats

import (
	"strings"

	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Key names one derived attribute. The suffix decides how the pivot combines
// values across lifetimes: "-sum" sums, "-max" takes the maximum, "-mean"
// averages. KeyDuration is summed.
type Key string

// CPU group (PRC).
const (
	KeyCPUUsrSum         Key = "cpu-usr-sum"
	KeyCPUSysSum         Key = "cpu-sys-sum"
	KeyCPUUsrSysSum      Key = "cpu-usr-sys-sum"
	KeyCPUUsrSysSleepSum Key = "cpu-usr-sys-sleep-sum"
	KeyCPUSamplesSum     Key = "cpu-samples-sum"
	KeyClockTicksMax     Key = "clock-ticks-max"
)

// Memory group (PRM).
const (
	KeyMemVirtMax         Key = "mem-virt-kbytes-max"
	KeyMemVirtSum         Key = "mem-virt-kbytes-sum"
	KeyMemResMax          Key = "mem-res-kbytes-max"
	KeyMemResSum          Key = "mem-res-kbytes-sum"
	KeySwapMax            Key = "swap-kbytes-max"
	KeySwapSum            Key = "swap-kbytes-sum"
	KeyDataSizeMax        Key = "data-size-kbytes-max"
	KeyDataSizeSum        Key = "data-size-kbytes-sum"
	KeyMinorFaultsMax     Key = "page-faults-minor-max"
	KeyMinorFaultsSum     Key = "page-faults-minor-sum"
	KeyMajorFaultsMax     Key = "page-faults-major-max"
	KeyMajorFaultsSum     Key = "page-faults-major-sum"
	KeyVirtGrowthAbsSum   Key = "mem-virt-growth-kbytes-abs-sum"
	KeyVirtGrowthAbsMean  Key = "mem-virt-growth-kbytes-abs-mean"
	KeyVirtGrowthAllocSum Key = "mem-virt-growth-kbytes-alloc-sum"
	KeyVirtGrowthFreeSum  Key = "mem-virt-growth-kbytes-dealloc-sum"
	KeyResGrowthAbsSum    Key = "mem-res-growth-kbytes-abs-sum"
	KeyResGrowthAbsMean   Key = "mem-res-growth-kbytes-abs-mean"
	KeyResGrowthAllocSum  Key = "mem-res-growth-kbytes-alloc-sum"
	KeyResGrowthFreeSum   Key = "mem-res-growth-kbytes-dealloc-sum"
	KeyGrowthAllocSum     Key = "mem-growth-alloc-sum"
	KeyGrowthDeallocSum   Key = "mem-growth-dealloc-sum"
)

// Storage group (PRD).
const (
	KeyReadSectorsSum    Key = "read-sectors-sum"
	KeyWriteSectorsSum   Key = "write-sectors-sum"
	KeyWriteCancelledSum Key = "write-cancelled-sum"
)

// Accelerator group (PRE).
const (
	KeyBusySum    Key = "busy-sum"
	KeyMemBusySum Key = "mem-busy-sum"
	KeyMemUtilSum Key = "mem-util-kb-sum"
	KeyMemUtilMax Key = "mem-util-kb-max"
)

// KeyDuration is EndOf - Start of a lifetime.
const KeyDuration Key = "probable-duration"

// Keys is the complete derived attribute set, in column order.
var Keys = []Key{
	KeyDuration,
	KeyCPUUsrSum, KeyCPUSysSum, KeyCPUUsrSysSum, KeyCPUUsrSysSleepSum, KeyCPUSamplesSum, KeyClockTicksMax,
	KeyMemVirtMax, KeyMemVirtSum, KeyMemResMax, KeyMemResSum,
	KeySwapMax, KeySwapSum, KeyDataSizeMax, KeyDataSizeSum,
	KeyMinorFaultsMax, KeyMinorFaultsSum, KeyMajorFaultsMax, KeyMajorFaultsSum,
	KeyVirtGrowthAbsSum, KeyVirtGrowthAbsMean, KeyVirtGrowthAllocSum, KeyVirtGrowthFreeSum,
	KeyResGrowthAbsSum, KeyResGrowthAbsMean, KeyResGrowthAllocSum, KeyResGrowthFreeSum,
	KeyGrowthAllocSum, KeyGrowthDeallocSum,
	KeyReadSectorsSum, KeyWriteSectorsSum, KeyWriteCancelledSum,
	KeyBusySum, KeyMemBusySum, KeyMemUtilSum, KeyMemUtilMax,
}

// Aggregation is how the pivot combines one key across lifetimes.
type Aggregation int

const (
	AggSum Aggregation = iota
	AggMax
	AggMean
)

// Aggregation returns the pivot aggregation of k.
func (k Key) Aggregation() Aggregation {
	switch {
	case strings.HasSuffix(string(k), "-max"):
		return AggMax
	case strings.HasSuffix(string(k), "-mean"):
		return AggMean
	default:
		return AggSum
	}
}

// Inputs lists the secondary fields each stream must merge for Compute.
var Inputs = map[schema.Kind][]string{
	schema.KindCPU: {"clock-ticks", "cpu-usr", "cpu-sys", "sleep-avg"},
	schema.KindMemory: {
		"mem-virt-kbytes", "mem-res-kbytes", "mem-virt-growth-kbytes", "mem-res-growth-kbytes",
		"page-faults-minor", "page-faults-major", "data-size-kbytes", "swap-kbytes",
	},
	schema.KindAccelerator: {"busy", "mem-busy", "mem-util-kb"},
	schema.KindStorage:     {"read-sectors", "write-sectors", "write-cancelled"},
}
