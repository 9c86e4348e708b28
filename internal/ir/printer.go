package ir

import (
	"fmt"
	"io"
)

// Dump writes a simple human-readable representation of the design.
func Dump(design *Design, w io.Writer) {
	if design == nil {
		fmt.Fprintln(w, "<nil design>")
		return
	}
	for _, module := range design.Modules {
		fmt.Fprintf(w, "module %s\n", module.Name)
		if module.Verbatim != "" {
			fmt.Fprintln(w, "  verbatim")
		}
		dumpPorts(module, w)
		dumpParams(module, w)
		dumpSignals(module, w)
		dumpInstances(module, w)
		fmt.Fprintf(w, "  logic: %d items\n", len(module.logics))
		fmt.Fprintln(w)
	}
}

func dumpPorts(module *Module, w io.Writer) {
	if len(module.ports) == 0 {
		return
	}
	fmt.Fprintln(w, "  ports:")
	for _, port := range module.ports {
		fmt.Fprintf(w, "    %s %s%s\n", portDirection(port.Direction), port.Name, port.Range)
	}
}

func dumpParams(module *Module, w io.Writer) {
	if len(module.params) == 0 {
		return
	}
	fmt.Fprintln(w, "  params:")
	for _, p := range module.params {
		fmt.Fprintf(w, "    %s = %s\n", p.Name, p.Value)
	}
}

func dumpSignals(module *Module, w io.Writer) {
	if len(module.signals) == 0 {
		return
	}
	fmt.Fprintln(w, "  signals:")
	for _, sig := range module.signals {
		fmt.Fprintf(w, "    %-4s %s%s\n", signalKind(sig.Kind), sig.Name, sig.Range)
	}
}

func dumpInstances(module *Module, w io.Writer) {
	if len(module.instances) == 0 {
		return
	}
	fmt.Fprintln(w, "  instances:")
	for _, inst := range module.instances {
		fmt.Fprintf(w, "    %s %s (%d ports)\n", inst.Module, inst.Name, len(inst.Ports))
	}
}

func portDirection(dir PortDirection) string {
	switch dir {
	case Input:
		return "in "
	case Output:
		return "out"
	case InOut:
		return "io "
	default:
		return "?"
	}
}

func signalKind(k SignalKind) string {
	switch k {
	case Wire:
		return "wire"
	case Reg:
		return "reg"
	default:
		return "?"
	}
}
