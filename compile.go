package octopus

import (
	"bytes"
	"os"
	"os/exec"
)

// CompilerName is the external tool invoked to turn a source parser
// file into IR JSON when `-j`/`--json` is not given (spec.md section
// 6): compiling the source language itself is explicitly out of
// scope here, so this is a minimal collaborator contract, not an
// implementation of that compiler.
const CompilerName = "octopus-compile"

// LoadFile reads path and, unless isJSON is true, first pipes it
// through CompilerName (found on $PATH) to obtain IR JSON, then loads
// it with LoadParser.
func LoadFile(path string, isJSON bool) (*Parser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr(KindInput, "reading %s: %s", path, err)
	}
	if !isJSON {
		data, err = compileToIR(path, data)
		if err != nil {
			return nil, err
		}
	}
	return LoadParser(data)
}

// compileToIR shells out to CompilerName, feeding it the source file's
// bytes on stdin and its path as an argument, and returns the IR JSON
// it writes to stdout.
func compileToIR(path string, src []byte) ([]byte, error) {
	bin, err := exec.LookPath(CompilerName)
	if err != nil {
		return nil, newErr(KindInput, "%s not found on PATH (pass -j/--json to supply IR JSON directly): %s", CompilerName, err)
	}
	cmd := exec.Command(bin, path)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, newErr(KindInput, "%s failed on %s: %s (%s)", CompilerName, path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
