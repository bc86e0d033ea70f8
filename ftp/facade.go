package ftp

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Operation is a named protocol call. Every operation except connect and
// ssl_connect takes the Session as its first argument.
type Operation func(args ...any) (any, error)

// Facade dispatches protocol operations by name.
//
// The default operations and their arguments are:
//
//	connect, ssl_connect  (host string, port int, timeout time.Duration) -> Session
//	login                 (s Session, user, password string)
//	pasv                  (s Session, on bool)
//	systype, pwd          (s Session) -> string
//	chdir, mkdir, rmdir   (s Session, dir string)
//	get, put              (s Session, remote, local string, mode TransferMode)
//	rename                (s Session, from, to string)
//	delete                (s Session, path string)
//	chmod                 (s Session, path string, mode os.FileMode)
//	nlist                 (s Session, dir string) -> []string
//	close                 (s Session)
type Facade struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewFacade returns a Facade whose operations are served by driver.
func NewFacade(driver Driver) *Facade {
	f := &Facade{ops: make(map[string]Operation)}

	f.Register("connect", func(args ...any) (any, error) {
		a := &arguments{op: "connect", args: args}
		host, port, timeout := arg[string](a, 0), arg[int](a, 1), arg[time.Duration](a, 2)
		if a.err != nil {
			return nil, a.err
		}
		return driver.Connect(host, port, timeout)
	})
	f.Register("ssl_connect", func(args ...any) (any, error) {
		a := &arguments{op: "ssl_connect", args: args}
		host, port, timeout := arg[string](a, 0), arg[int](a, 1), arg[time.Duration](a, 2)
		if a.err != nil {
			return nil, a.err
		}
		return driver.SecureConnect(host, port, timeout)
	})

	f.register("login", func(s Session, a *arguments) (any, error) {
		user, password := arg[string](a, 1), arg[string](a, 2)
		if a.err != nil {
			return nil, a.err
		}
		return nil, s.Login(user, password)
	})
	f.register("pasv", func(s Session, a *arguments) (any, error) {
		on := arg[bool](a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return nil, s.Passive(on)
	})
	f.register("systype", func(s Session, _ *arguments) (any, error) {
		return s.SystemType()
	})
	f.register("pwd", func(s Session, _ *arguments) (any, error) {
		return s.CurrentDir()
	})
	f.register("chdir", dirOp(Session.ChangeDir))
	f.register("mkdir", dirOp(Session.MakeDir))
	f.register("rmdir", dirOp(Session.RemoveDir))
	f.register("delete", dirOp(Session.Delete))
	f.register("get", func(s Session, a *arguments) (any, error) {
		remote, local, mode := arg[string](a, 1), arg[string](a, 2), arg[TransferMode](a, 3)
		if a.err != nil {
			return nil, a.err
		}
		return nil, download(s, remote, local, mode)
	})
	f.register("put", func(s Session, a *arguments) (any, error) {
		remote, local, mode := arg[string](a, 1), arg[string](a, 2), arg[TransferMode](a, 3)
		if a.err != nil {
			return nil, a.err
		}
		return nil, upload(s, remote, local, mode)
	})
	f.register("rename", func(s Session, a *arguments) (any, error) {
		from, to := arg[string](a, 1), arg[string](a, 2)
		if a.err != nil {
			return nil, a.err
		}
		return nil, s.Rename(from, to)
	})
	f.register("chmod", func(s Session, a *arguments) (any, error) {
		path, mode := arg[string](a, 1), arg[os.FileMode](a, 2)
		if a.err != nil {
			return nil, a.err
		}
		return nil, s.Chmod(path, mode)
	})
	f.register("nlist", func(s Session, a *arguments) (any, error) {
		dir := arg[string](a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return s.NameList(dir)
	})
	f.register("close", func(s Session, _ *arguments) (any, error) {
		return nil, s.Close()
	})

	return f
}

// Register adds or replaces the operation called name.
func (f *Facade) Register(name string, op Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[name] = op
}

// Operations returns the registered names in sorted order.
func (f *Facade) Operations() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ops))
	for name := range f.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fire runs the operation called name. Unknown names return a
// *RuntimeError.
func (f *Facade) Fire(name string, args ...any) (any, error) {
	f.mu.RLock()
	op, ok := f.ops[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &RuntimeError{Operation: name, Message: "unknown operation"}
	}
	return op(args...)
}

func (f *Facade) register(name string, fn func(s Session, a *arguments) (any, error)) {
	f.Register(name, func(args ...any) (any, error) {
		a := &arguments{op: name, args: args}
		s := arg[Session](a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return fn(s, a)
	})
}

func dirOp(fn func(Session, string) error) func(Session, *arguments) (any, error) {
	return func(s Session, a *arguments) (any, error) {
		dir := arg[string](a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return nil, fn(s, dir)
	}
}

// arguments reads positional operation arguments, keeping the first
// mismatch.
type arguments struct {
	op   string
	args []any
	err  error
}

func arg[T any](a *arguments, i int) T {
	var zero T
	if a.err != nil {
		return zero
	}
	want := reflect.TypeFor[T]()
	if i >= len(a.args) {
		a.err = &RuntimeError{Operation: a.op, Message: fmt.Sprintf("missing argument %d (%s)", i, want)}
		return zero
	}
	v, ok := a.args[i].(T)
	if !ok {
		a.err = &RuntimeError{Operation: a.op, Message: fmt.Sprintf("argument %d is %T, want %s", i, a.args[i], want)}
		return zero
	}
	return v
}

// result asserts the value returned by an operation.
func result[T any](op string, v any) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, &RuntimeError{Operation: op, Message: fmt.Sprintf("unexpected result %T", v)}
	}
	return out, nil
}

func download(s Session, remote, local string, mode TransferMode) error {
	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", local, err)
	}
	if err := s.Retrieve(remote, f, mode); err != nil {
		f.Close()
		os.Remove(local)
		return err
	}
	return f.Close()
}

func upload(s Session, remote, local string, mode TransferMode) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()
	return s.Store(remote, f, mode)
}
