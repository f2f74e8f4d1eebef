package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
	"github.com/rightvendors/portfolyze/internal/auth/challenge"
	"github.com/rightvendors/portfolyze/internal/auth/flow"
	"github.com/rightvendors/portfolyze/internal/auth/verification"
	"github.com/rightvendors/portfolyze/internal/phone"
)

// containerID names the single challenge container the terminal flow renders into.
const containerID = "cli-challenge"

var errCancelled = errors.New("cancelled")

// prompter drives one flow.Machine from line-oriented terminal input.
type prompter struct {
	provider    auth.Provider
	region      string
	logger      *zap.Logger
	in          io.Reader
	out         io.Writer
	variant     flow.Variant
	displayName string

	lines <-chan string
}

func (p *prompter) run(ctx context.Context) (auth.UserIdentity, error) {
	log := p.logger
	if log == nil {
		log = zap.NewNop()
	}
	widgets := challenge.NewManager(p.provider, challenge.WithLogger(log.Named("challenge")))
	defer widgets.Close()
	verifier := verification.NewClient(p.provider, p.region, log.Named("verification"))
	m := flow.New(containerID, widgets, verifier,
		flow.WithLogger(log.Named("flow")),
		flow.WithObserver(func(tr flow.Transition) {
			log.Debug("flow transition", zap.Stringer("from", tr.From), zap.Stringer("to", tr.To))
		}))
	defer m.Close()

	if err := m.Open(p.variant); err != nil {
		return auth.UserIdentity{}, err
	}
	p.lines = readLines(p.in)
	prefix := phone.NewFormatter(p.region).CountryPrefix()
	name := strings.TrimSpace(p.displayName)

	for {
		snap := m.Snapshot()
		var err error
		switch snap.Phase {
		case flow.CollectingIdentity:
			if p.variant == flow.SignUp && name == "" {
				if name, err = p.ask(ctx, "Display name: "); err != nil {
					return auth.UserIdentity{}, err
				}
			}
			var number string
			if number, err = p.ask(ctx, fmt.Sprintf("Phone number %s ", prefix)); err != nil {
				return auth.UserIdentity{}, err
			}
			err = m.SubmitIdentity(ctx, number, name)
			if err == nil {
				fmt.Fprintf(p.out, "Code sent to %s %s.\n", prefix, number)
			}

		case flow.CodeSent:
			var input string
			if input, err = p.ask(ctx, "6-digit code (r: resend, c: change number): "); err != nil {
				return auth.UserIdentity{}, err
			}
			switch strings.ToLower(input) {
			case "r":
				if err = m.Resend(ctx); err == nil {
					fmt.Fprintln(p.out, "A new code is on its way.")
				}
			case "c":
				err = m.ChangeNumber()
			default:
				err = m.SubmitCode(ctx, input)
			}

		case flow.Authenticated:
			return *snap.Identity, nil

		default:
			return auth.UserIdentity{}, fmt.Errorf("unexpected flow phase %s", snap.Phase)
		}

		if err := p.report(ctx, err); err != nil {
			return auth.UserIdentity{}, err
		}
		if errors.Is(err, flow.ErrDisplayNameRequired) {
			name = ""
		}
	}
}

// report prints recoverable errors and returns the ones that end the flow.
func (p *prompter) report(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errCancelled
	}
	var ce *autherr.Error
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(p.out, "! %s\n", ce.Message())
	case errors.Is(err, flow.ErrDisplayNameRequired):
		fmt.Fprintln(p.out, "! A display name is required")
	default:
		return err
	}
	return nil
}

// ask prints label and returns the next trimmed input line.
func (p *prompter) ask(ctx context.Context, label string) (string, error) {
	fmt.Fprint(p.out, label)
	select {
	case <-ctx.Done():
		return "", errCancelled
	case line, ok := <-p.lines:
		if !ok {
			return "", errCancelled
		}
		return strings.TrimSpace(line), nil
	}
}

// readLines feeds r's lines to the returned channel until EOF. The goroutine outlives a cancelled
// flow while blocked on r; the process exits soon after.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
