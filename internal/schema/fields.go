package schema

type column struct {
	name string
	typ  ValueType
}

func num(name string) column { return column{name, TypeInt} }
func str(name string) column { return column{name, TypeString} }
func cat(name string) column { return column{name, TypeCategory} }

// Every parseable-output line starts with these columns.
var commonColumns = []column{
	str("label"), str("host"), num("epoch"), str("date"), str("time"), num("interval"),
}

var registry = map[Kind]*Schema{
	KindProcess: build(KindProcess, []string{"name", "command"},
		num("pid"), str("name"), cat("state"), num("uid-real"), num("gid-real"), num("tgid"),
		num("threads-count"), num("exit-code"), num("start"), str("command"), num("ppid"),
		num("threads-r"), num("threads-s"), num("threads-d"), num("uid-effective"),
		num("gid-effective"), num("uid-saved"), num("gid-saved"), num("uid-filesystem"),
		num("gid-filesystem"), num("elapsed-time"), cat("is-process"), num("vpid"),
		num("ctid"), str("cid"),
	),
	KindCPU: build(KindCPU, []string{"name"},
		num("pid"), str("name"), cat("state"), num("clock-ticks"), num("cpu-usr"), num("cpu-sys"),
		num("nice"), num("priority"), num("priority-realtime"), num("scheduling"),
		num("cpu-cur"), num("sleep-avg"), num("tgid"), cat("is-process"),
	),
	KindMemory: build(KindMemory, []string{"name"},
		num("pid"), str("name"), cat("state"), num("page-bytes"), num("mem-virt-kbytes"),
		num("mem-res-kbytes"), num("mem-shared-text-kbytes"), num("mem-virt-growth-kbytes"),
		num("mem-res-growth-kbytes"), num("page-faults-minor"), num("page-faults-major"),
		num("exec-size-kbytes"), num("data-size-kbytes"), num("stack-size-kbytes"),
		num("swap-kbytes"), num("tgid"), cat("is-process"), num("set-size-kbytes"),
	),
	KindAccelerator: build(KindAccelerator, []string{"name"},
		num("pid"), str("name"), cat("state"), cat("gpu-state"), num("gpus-used"), num("bitlist"),
		num("busy"), num("mem-busy"), num("mem-util-curr-kb"), num("mem-util-kb"), num("samples"),
	),
	KindStorage: build(KindStorage, []string{"name"},
		num("pid"), str("name"), cat("state"), cat("obsolete-kernel"), cat("std-stat-used"),
		num("reads"), num("read-sectors"), num("writes"), num("write-sectors"),
		num("write-cancelled"), num("tgid"), cat("is-process"),
	),
}

func build(kind Kind, bracketed []string, cols ...column) *Schema {
	inBrackets := make(map[string]bool, len(bracketed))
	for _, name := range bracketed {
		inBrackets[name] = true
	}

	all := append(append([]column{}, commonColumns...), cols...)
	sc := &Schema{
		Kind:   kind,
		Fields: make([]Field, len(all)),
		byName: make(map[string]int, len(all)),
	}
	for idx, col := range all {
		sc.Fields[idx] = Field{
			Name:      col.name,
			Index:     idx,
			Type:      col.typ,
			Bracketed: inBrackets[col.name],
		}
		sc.byName[col.name] = idx
	}
	return sc
}
