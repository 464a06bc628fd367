package indexer

import "fmt"

// Kind identifies an Operation.
type Kind int

const (
	KindRestore Kind = iota
	KindBuild
	KindDump
)

func (k Kind) String() string {
	switch k {
	case KindRestore:
		return "restore"
	case KindBuild:
		return "build"
	case KindDump:
		return "dump"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Operation is one step of a run. The concrete types are OpRestore, OpBuild
// and OpDump.
type Operation interface {
	Kind() Kind
	String() string
}

// OpRestore loads a dump and merges it into the store under construction.
type OpRestore struct{ Location string }

// OpBuild indexes every readable file under Source.
type OpBuild struct{ Source string }

// OpDump writes the store to Location.
type OpDump struct{ Location string }

func (OpRestore) Kind() Kind { return KindRestore }
func (OpBuild) Kind() Kind   { return KindBuild }
func (OpDump) Kind() Kind    { return KindDump }

func (o OpRestore) String() string { return "restore " + o.Location }
func (o OpBuild) String() string   { return "build " + o.Source }
func (o OpDump) String() string    { return "dump " + o.Location }

// RunConfig names the inputs and output of a run, as given on the command
// line.
type RunConfig struct {
	Restore []string
	Source  string
	Dump    string
}

// Plan turns rc into operations: every restore first, in order, then the
// build, then the dump.
func Plan(rc RunConfig) []Operation {
	var ops []Operation
	for _, loc := range rc.Restore {
		if loc != "" {
			ops = append(ops, OpRestore{Location: loc})
		}
	}
	if rc.Source != "" {
		ops = append(ops, OpBuild{Source: rc.Source})
	}
	if rc.Dump != "" {
		ops = append(ops, OpDump{Location: rc.Dump})
	}
	return ops
}
