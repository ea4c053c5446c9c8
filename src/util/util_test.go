package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLabelerMintsUniqueNames(t *testing.T) {
	l := NewLabeler()
	if got := l.NextLabel(); got != "_L0" {
		t.Errorf("first label %q, want _L0", got)
	}
	if got := l.NextLabel(); got != "_L1" {
		t.Errorf("second label %q, want _L1", got)
	}
	if got := l.NextTemp(); got != "_tmp0" {
		t.Errorf("first temp %q, want _tmp0", got)
	}
	// Labels and temporaries count independently.
	if got := l.NextTemp(); got != "_tmp1" {
		t.Errorf("second temp %q, want _tmp1", got)
	}

	// A fresh Labeler starts over; counters are per compilation, not
	// per process.
	if got := NewLabeler().NextLabel(); got != "_L0" {
		t.Errorf("fresh labeler starts at %q, want _L0", got)
	}
}

func TestStack(t *testing.T) {
	s := Stack{}
	s.Push("a")
	s.Push("b")
	if got := s.Peek(); got != "b" {
		t.Errorf("Peek() = %v, want b", got)
	}
	if got := s.Size(); got != 2 {
		t.Errorf("Size() = %d, want 2", got)
	}
	if got := s.Pop(); got != "b" {
		t.Errorf("Pop() = %v, want b", got)
	}
	if got := s.Pop(); got != "a" {
		t.Errorf("Pop() = %v, want a", got)
	}
	if got := s.Pop(); got != nil {
		t.Errorf("Pop() on empty stack = %v, want <nil>", got)
	}
	s.Push(nil)
	if got := s.Size(); got != 0 {
		t.Error("the stack must not store <nil> values")
	}
}

func TestBufferedWriter(t *testing.T) {
	wr := NewBufferedWriter()
	wr.Write("# %s\n", "header")
	wr.Ins2("li", "$t0", "1")
	wr.Ins3("add", "$t2", "$t0", "$t1")
	wr.LoadStore("lw", "$t0", -8, "$fp")
	wr.Label("main")

	want := "# header\n\tli\t$t0, 1\n\tadd\t$t2, $t0, $t1\n\tlw\t$t0, -8($fp)\nmain:\n"
	if got := wr.String(); got != want {
		t.Errorf("buffer = %q, want %q", got, want)
	}
	// A buffered writer has no listener; Flush must be a no-op.
	wr.Flush()
	if wr.String() != want {
		t.Error("Flush on a buffered writer must not drop the buffer")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decafc.toml")
	config := "out = \"a.s\"\nthreads = 8\nverbose = true\ndebug = \"tac\"\n"
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	opt := Options{Config: path}
	if err := loadConfig(&opt); err != nil {
		t.Fatal(err)
	}
	if opt.Out != "a.s" || opt.Threads != 8 || !opt.Verbose || opt.Debug != DebugTAC {
		t.Errorf("config not applied: %+v", opt)
	}

	// Command line flags win over the configuration file.
	opt = Options{Config: path, Out: "b.s", Debug: DebugJSON}
	if err := loadConfig(&opt); err != nil {
		t.Fatal(err)
	}
	if opt.Out != "b.s" || opt.Debug != DebugJSON {
		t.Errorf("flags must take precedence over the file: %+v", opt)
	}
}

func TestLoadConfigRejectsBadDebug(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decafc.toml")
	if err := os.WriteFile(path, []byte("debug = \"mips\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opt := Options{Config: path}
	if err := loadConfig(&opt); err == nil {
		t.Fatal("unknown debug selector in the config file must be rejected")
	}
}

func TestPerrorCombine(t *testing.T) {
	pe := NewPerror(4)
	pe.Append(os.ErrNotExist)
	pe.Append(nil) // Ignored.
	pe.Append(os.ErrPermission)
	pe.Stop()

	if got := pe.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	err := pe.Combine()
	if err == nil {
		t.Fatal("Combine() of two errors must not be <nil>")
	}

	pe = NewPerror(1)
	pe.Stop()
	if pe.Combine() != nil {
		t.Error("Combine() with no errors must be <nil>")
	}
}
