package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"github.com/victorjacobs/go-comfoconnect/flow"
	"github.com/victorjacobs/go-comfoconnect/store"
)

var errAborted = errors.New("aborted")

var errorMessages = map[string]string{
	flow.ErrorInvalidHost:     "No gateway answered at that address",
	flow.ErrorInvalidPin:      "The gateway rejected the PIN",
	flow.ErrorInvalidPinRange: "The PIN has four digits",
}

var abortMessages = map[string]string{
	flow.ReasonAlreadyConfigured: "This gateway is already configured",
	flow.ReasonReauthSuccessful:  "Registered again",
}

type prompter interface {
	Prompt(label string) (string, error)
}

type readlinePrompter struct {
	rl *readline.Instance
}

func (p *readlinePrompter) Prompt(label string) (string, error) {
	p.rl.SetPrompt(label)
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", errAborted
	}
	return strings.TrimSpace(line), err
}

// wizard answers the forms of a flow from a prompt until it creates an entry or aborts.
type wizard struct {
	flow   *flow.Flow
	prompt prompter
	out    io.Writer
}

func (w *wizard) run(ctx context.Context, res flow.Result) (flow.Result, error) {
	var err error

	for res.Type == flow.ResultForm {
		w.printErrors(res.Errors)

		switch res.StepID {
		case flow.StepUser:
			var choice string
			if choice, err = w.choose(res.Options); err != nil {
				return res, err
			}
			res, err = w.flow.User(ctx, &choice)
		case flow.StepManual:
			var host string
			if host, err = w.prompt.Prompt("Gateway address: "); err != nil {
				return res, err
			}
			res, err = w.flow.Manual(ctx, &host)
		case flow.StepEnterPin:
			var line string
			if line, err = w.prompt.Prompt("PIN: "); err != nil {
				return res, err
			}
			pin, convErr := strconv.Atoi(line)
			if convErr != nil {
				pin = -1
			}
			res, err = w.flow.EnterPin(ctx, &pin)
		default:
			return res, fmt.Errorf("unknown step %q", res.StepID)
		}
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func (w *wizard) printErrors(errs map[string]string) {
	for _, code := range errs {
		msg, ok := errorMessages[code]
		if !ok {
			msg = code
		}
		fmt.Fprintln(w.out, msg)
	}
}

// choose lists the options, manual entry last, and returns the picked key.
func (w *wizard) choose(options map[string]string) (string, error) {
	keys := make([]string, 0, len(options))
	for k := range options {
		if k != flow.ManualBridgeID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return options[keys[i]] < options[keys[j]] })
	if _, ok := options[flow.ManualBridgeID]; ok {
		keys = append(keys, flow.ManualBridgeID)
	}

	for {
		for i, k := range keys {
			if k == flow.ManualBridgeID {
				fmt.Fprintf(w.out, "%2d) %v\n", i+1, options[k])
			} else {
				fmt.Fprintf(w.out, "%2d) %v (%v)\n", i+1, options[k], k)
			}
		}

		line, err := w.prompt.Prompt("Gateway: ")
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(keys) {
			return keys[n-1], nil
		}
		if _, ok := options[line]; ok {
			return line, nil
		}
		fmt.Fprintf(w.out, "Pick a number between 1 and %v\n", len(keys))
	}
}

type entryLookup interface {
	Get(ctx context.Context, entryID string) (store.Entry, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (store.Entry, error)
}

// lookupEntry finds an entry by its id or by the uuid of its gateway.
func lookupEntry(ctx context.Context, st entryLookup, ref string) (store.Entry, error) {
	e, err := st.Get(ctx, ref)
	if !errors.Is(err, store.ErrNotFound) {
		return e, err
	}
	if byUUID, uerr := st.GetByUniqueID(ctx, strings.ReplaceAll(strings.ToLower(ref), "-", "")); uerr == nil {
		return byUUID, nil
	}
	return e, err
}

func (a *app) pair(c *cli.Context) error {
	ctx := c.Context

	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	daemon := newDaemonClient(c.String("api"))
	notify := func(ctx context.Context, entryID string) error {
		if err := daemon.reload(ctx, entryID); err != nil {
			a.logger.Warnf("Could not reload %v in the daemon, restart it to pick up the change: %v", entryID, err)
		}
		return nil
	}

	f := flow.New(flow.Options{
		Entries:      st,
		Reload:       notify,
		AppName:      a.cfg.ComfoConnect.AppName,
		LocationName: a.cfg.ComfoConnect.LocationName,
		Logger:       a.logger.Named("flow"),
	})
	w := &wizard{flow: f, prompt: &readlinePrompter{rl: rl}, out: rl.Stdout()}

	var res flow.Result
	switch {
	case c.String("reauth") != "":
		e, err := lookupEntry(ctx, st, c.String("reauth"))
		if err != nil {
			return err
		}
		res, err = f.Reauth(ctx, e.EntryID, flow.EntryData{Host: e.Host, UUID: e.UUID, LocalUUID: e.LocalUUID})
		if err != nil {
			return err
		}
	case c.String("host") != "":
		host := c.String("host")
		if res, err = f.Manual(ctx, &host); err != nil {
			return err
		}
	default:
		fmt.Fprintln(w.out, "Searching for gateways...")
		if res, err = f.User(ctx, nil); err != nil {
			return err
		}
	}

	res, err = w.run(ctx, res)
	if err != nil {
		return err
	}

	switch res.Type {
	case flow.ResultCreateEntry:
		fmt.Fprintf(w.out, "Added %v as entry %v\n", res.Title, res.EntryID)
		return notify(ctx, res.EntryID)
	case flow.ResultAbort:
		msg, ok := abortMessages[res.Reason]
		if !ok {
			msg = res.Reason
		}
		fmt.Fprintln(w.out, msg)
	}
	return nil
}
