package stats

import (
	"github.com/mrzor/atop-lifetimes/internal/procmeta"
)

// Attributes holds the derived attributes of one lifetime or one pivot row.
// It is sparse: a key is present only when its input fields were sampled.
type Attributes map[Key]float64

// Get returns the value of k and whether it is present.
func (a Attributes) Get(k Key) (float64, bool) {
	v, ok := a[k]
	return v, ok
}

// Map returns the attributes keyed by plain strings, for expression
// environments and serializers.
func (a Attributes) Map() map[string]float64 {
	out := make(map[string]float64, len(a))
	for k, v := range a {
		out[string(k)] = v
	}
	return out
}

type acc struct {
	sum int64
	max int64
	n   int
}

func (a *acc) add(v int64) {
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *acc) put(attrs Attributes, sumKey, maxKey Key) {
	if a.n == 0 {
		return
	}
	if sumKey != "" {
		attrs[sumKey] = float64(a.sum)
	}
	if maxKey != "" {
		attrs[maxKey] = float64(a.max)
	}
}

type memField struct {
	name     string
	max, sum Key
}

var memFields = []memField{
	{"mem-virt-kbytes", KeyMemVirtMax, KeyMemVirtSum},
	{"mem-res-kbytes", KeyMemResMax, KeyMemResSum},
	{"swap-kbytes", KeySwapMax, KeySwapSum},
	{"data-size-kbytes", KeyDataSizeMax, KeyDataSizeSum},
	{"page-faults-minor", KeyMinorFaultsMax, KeyMinorFaultsSum},
	{"page-faults-major", KeyMajorFaultsMax, KeyMajorFaultsSum},
}

type growthField struct {
	name    string
	absSum  Key
	absMean Key
	alloc   Key
	free    Key
}

var growthFields = []growthField{
	{"mem-virt-growth-kbytes", KeyVirtGrowthAbsSum, KeyVirtGrowthAbsMean, KeyVirtGrowthAllocSum, KeyVirtGrowthFreeSum},
	{"mem-res-growth-kbytes", KeyResGrowthAbsSum, KeyResGrowthAbsMean, KeyResGrowthAllocSum, KeyResGrowthFreeSum},
}

type sumField struct {
	name string
	sum  Key
}

var storageFields = []sumField{
	{"read-sectors", KeyReadSectorsSum},
	{"write-sectors", KeyWriteSectorsSum},
	{"write-cancelled", KeyWriteCancelledSum},
}

var acceleratorFields = []sumField{
	{"busy", KeyBusySum},
	{"mem-busy", KeyMemBusySum},
}

// Compute derives the attributes of one lifetime from its time series.
//
// Growth splits work per row: a row whose growth fields include a positive
// value belongs to the allocation set, one with a negative value to the
// deallocation set, and a row with both signs belongs to both. Inside a row
// each growth field adds its positive part to the allocation sum and its
// negative part to the deallocation sum, so no value is counted twice.
func Compute(rec *procmeta.Record) Attributes {
	attrs := Attributes{KeyDuration: float64(rec.Duration())}

	var usr, sys, ticks, usrSys, usrSysSleep, memUtil acc
	var allocTotal, freeTotal acc
	mem := make([]acc, len(memFields))
	absGrowth := make([]acc, len(growthFields))
	alloc := make([]acc, len(growthFields))
	free := make([]acc, len(growthFields))
	storage := make([]acc, len(storageFields))
	accel := make([]acc, len(acceleratorFields))
	growthRows := 0

	rec.Series.Rows(func(_ int64, fs procmeta.FieldSet) {
		u, uok := fs.Int("cpu-usr")
		s, sok := fs.Int("cpu-sys")
		if uok {
			usr.add(u)
		}
		if sok {
			sys.add(s)
		}
		if uok && sok {
			usrSys.add(u + s)
			if sleep, ok := fs.Int("sleep-avg"); ok {
				usrSysSleep.add(u + s + sleep)
			}
		}
		if v, ok := fs.Int("clock-ticks"); ok {
			ticks.add(v)
		}

		for i, f := range memFields {
			if v, ok := fs.Int(f.name); ok {
				mem[i].add(v)
			}
		}

		var grew, shrank, sampled bool
		values := make([]int64, len(growthFields))
		present := make([]bool, len(growthFields))
		for i, f := range growthFields {
			v, ok := fs.Int(f.name)
			if !ok {
				continue
			}
			values[i], present[i], sampled = v, true, true
			absGrowth[i].add(abs(v))
			grew = grew || v > 0
			shrank = shrank || v < 0
		}
		if sampled {
			growthRows++
			for i := range growthFields {
				if !present[i] {
					continue
				}
				v := values[i]
				if grew {
					alloc[i].add(max(v, 0))
					allocTotal.add(max(v, 0))
				}
				if shrank {
					free[i].add(min(v, 0))
					freeTotal.add(min(v, 0))
				}
			}
		}

		for i, f := range storageFields {
			if v, ok := fs.Int(f.name); ok {
				storage[i].add(v)
			}
		}
		for i, f := range acceleratorFields {
			if v, ok := fs.Int(f.name); ok {
				accel[i].add(v)
			}
		}
		if v, ok := fs.Int("mem-util-kb"); ok {
			memUtil.add(v)
		}
	})

	usr.put(attrs, KeyCPUUsrSum, "")
	sys.put(attrs, KeyCPUSysSum, "")
	ticks.put(attrs, "", KeyClockTicksMax)
	usrSys.put(attrs, KeyCPUUsrSysSum, "")
	if usrSys.n > 0 {
		attrs[KeyCPUSamplesSum] = float64(usrSys.n)
	}
	usrSysSleep.put(attrs, KeyCPUUsrSysSleepSum, "")

	for i, f := range memFields {
		mem[i].put(attrs, f.sum, f.max)
	}
	for i, f := range growthFields {
		absGrowth[i].put(attrs, f.absSum, "")
		if absGrowth[i].n > 0 {
			attrs[f.absMean] = float64(absGrowth[i].sum) / float64(absGrowth[i].n)
			// An identity with growth samples always reports both splits.
			attrs[f.alloc] = float64(alloc[i].sum)
			attrs[f.free] = float64(free[i].sum)
		}
	}
	if growthRows > 0 {
		attrs[KeyGrowthAllocSum] = float64(allocTotal.sum)
		attrs[KeyGrowthDeallocSum] = float64(freeTotal.sum)
	}

	for i, f := range storageFields {
		storage[i].put(attrs, f.sum, "")
	}
	for i, f := range acceleratorFields {
		accel[i].put(attrs, f.sum, "")
	}
	memUtil.put(attrs, KeyMemUtilSum, KeyMemUtilMax)

	return attrs
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
