package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"lwwdict/internal/clock"
	"lwwdict/internal/lww"
	"lwwdict/internal/node"
	"lwwdict/internal/payload"
	"lwwdict/internal/repair"
)

const usage = `usage: lwwctl [flags] <command> [args]

commands:
  add <key> [attr=value ...]     add a key
  update <key> [attr=value ...]  update a key
  remove <key>                   remove a key
  lookup <key>                   print whether a key is visible
  get <key>                      print the visible record of a key
  state                          print the full replica state
  health                         print whether the replica is serving
  sync <addr>                    exchange missing records with the replica at addr

flags:
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "lwwctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lwwctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	addrFlag := fs.String("addr", "127.0.0.1:7001", "gRPC address of the replica.")
	tsFlag := fs.Int64("ts", 0, "Timestamp of the write in milliseconds (default: now).")
	timeoutFlag := fs.Duration("timeout", 5*time.Second, "Timeout of the whole command.")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	client, err := node.Dial(*addrFlag, "lwwctl")
	if err != nil {
		return err
	}
	defer client.Close()

	ts := lww.Timestamp(*tsFlag)
	if ts == 0 {
		ts = clock.New().Now()
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	needKey := func() (string, error) {
		if len(rest) == 0 {
			fs.Usage()
			return "", errUsage
		}
		return rest[0], nil
	}

	switch cmd {
	case "add", "update":
		key, err := needKey()
		if err != nil {
			return err
		}
		rec, err := buildRecord(rest[1:], ts)
		if err != nil {
			return err
		}
		if cmd == "add" {
			err = client.Add(ctx, key, rec)
		} else {
			err = client.Update(ctx, key, rec)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s @%d\n", cmd, key, ts)

	case "remove":
		key, err := needKey()
		if err != nil {
			return err
		}
		if err := client.Remove(ctx, key, ts); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "remove %s @%d\n", key, ts)

	case "lookup":
		key, err := needKey()
		if err != nil {
			return err
		}
		ok, err := client.Lookup(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)

	case "get":
		key, err := needKey()
		if err != nil {
			return err
		}
		rec, ok, err := client.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q not found", key)
		}
		return printJSON(stdout, renderRecord(key, rec))

	case "state":
		d, origin, err := client.State(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, renderState(origin, d))

	case "health":
		ok, err := client.Serving(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)

	case "sync":
		other, err := needKey()
		if err != nil {
			return err
		}
		return syncPair(ctx, stdout, client, other)

	default:
		fs.Usage()
		return errUsage
	}
	return nil
}

func buildRecord(pairs []string, ts lww.Timestamp) (lww.Record, error) {
	if len(pairs) == 0 {
		return lww.NewRecord(nil, ts), nil
	}
	attrs, err := payload.ParseAttrs(pairs)
	if err != nil {
		return lww.Record{}, err
	}
	b, err := payload.FromMap(attrs)
	if err != nil {
		return lww.Record{}, err
	}
	return lww.NewRecord(b, ts), nil
}

// syncPair sends each of the two replicas the records the other is missing.
func syncPair(ctx context.Context, w io.Writer, a *node.Client, addr string) error {
	b, err := node.Dial(addr, "lwwctl")
	if err != nil {
		return err
	}
	defer b.Close()

	stateA, originA, err := a.State(ctx)
	if err != nil {
		return err
	}
	stateB, originB, err := b.State(ctx)
	if err != nil {
		return err
	}

	toB, err := b.Merge(ctx, repair.Diff(stateA, stateB), false)
	if err != nil {
		return fmt.Errorf("push to %s: %w", originB, err)
	}
	toA, err := a.Merge(ctx, repair.Diff(stateB, stateA), false)
	if err != nil {
		return fmt.Errorf("push to %s: %w", originA, err)
	}

	fmt.Fprintf(w, "%s <- %s: %d adds, %d removes\n", originB, originA, toB.Adds, toB.Removes)
	fmt.Fprintf(w, "%s <- %s: %d adds, %d removes\n", originA, originB, toA.Adds, toA.Removes)

	merged := repair.Reconcile(stateA, stateB)
	adds, removes := merged.Sizes()
	fmt.Fprintf(w, "converged: %d visible, %d adds, %d removes\n", merged.Len(), adds, removes)
	return nil
}

type recordJSON struct {
	Key       string         `json:"key"`
	Timestamp int64          `json:"timestamp"`
	Time      string         `json:"time"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	Raw       []byte         `json:"raw,omitempty"`
}

func renderRecord(key string, rec lww.Record) recordJSON {
	out := recordJSON{
		Key:       key,
		Timestamp: int64(rec.Timestamp),
		Time:      clock.ToTime(rec.Timestamp).UTC().Format(time.RFC3339Nano),
	}
	if len(rec.Payload) == 0 {
		return out
	}
	if attrs, err := payload.ToMap(rec.Payload); err == nil {
		out.Attrs = attrs
	} else {
		out.Raw = rec.Payload
	}
	return out
}

func renderState(origin string, d *lww.Dictionary) map[string]any {
	add := []recordJSON{}
	d.AddStore().Range(func(key string, rec lww.Record) bool {
		add = append(add, renderRecord(key, rec))
		return true
	})
	remove := []recordJSON{}
	d.RemoveStore().Range(func(key string, rec lww.Record) bool {
		remove = append(remove, renderRecord(key, rec))
		return true
	})
	return map[string]any{
		"node":    origin,
		"visible": d.Keys(),
		"add":     add,
		"remove":  remove,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
