package scenario

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/muesli/termenv"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
)

// transcript prints what a spectator sees and what each seat decides.
type transcript struct {
	mu       sync.Mutex
	out      *termenv.Output
	registry *command.Registry
	verbose  bool
}

func newTranscript(w io.Writer, registry *command.Registry, verbose bool, opts ...termenv.OutputOption) *transcript {
	return &transcript{out: termenv.NewOutput(w, opts...), registry: registry, verbose: verbose}
}

func (t *transcript) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func (t *transcript) header(name string) {
	t.printf("%s\n", t.out.String("scenario "+name).Bold())
}

// Deliver implements replication.Sink.
func (t *transcript) Deliver(p replication.Packet) error {
	env, err := t.registry.Encode(p.Command)
	if err != nil {
		return err
	}
	label := "batch"
	switch {
	case p.Bootstrap:
		label = "bootstrap"
	case p.Kind != "":
		label = string(p.Kind)
	}
	line := fmt.Sprintf("%s %s %s",
		t.out.String(fmt.Sprintf("#%03d", p.Seq)).Faint(),
		t.out.String(label).Foreground(t.out.Color("6")),
		env.Kind,
	)
	if t.verbose {
		line += " " + string(env.Payload)
	}
	t.printf("%s\n", line)
	return nil
}

func (t *transcript) choice(view decision.View, choice decision.Choice, answer any) {
	described := fmt.Sprint(answer)
	if id, ok := answer.(object.ID); ok {
		switch {
		case choice.Kind() == duel.ChoicePlay && id == duel.Pass:
			described = "pass"
		case view != nil && view.Manager() != nil:
			if name := view.Manager().String(id, duel.PropName); name != "" {
				described = name
			}
		}
	}
	t.printf("  %s %s -> %s\n",
		t.out.String(fmt.Sprintf("player %d", choice.Player())).Foreground(t.out.Color("3")),
		choice.Kind(),
		described,
	)
}

func (t *transcript) result(res duel.Result) {
	if res.Winner == 0 {
		t.printf("%s after %d turns\n", t.out.String("draw").Bold(), res.Turns)
		return
	}
	t.printf("%s on turn %d\n", t.out.String(fmt.Sprintf("player %d wins", res.Winner)).Bold().Foreground(t.out.Color("2")), res.Turns)
}

func (t *transcript) failure(msg string) {
	t.printf("%s %s\n", t.out.String("FAIL").Bold().Foreground(t.out.Color("1")), msg)
}

// narrated reports each answer of inner to the transcript.
type narrated struct {
	inner      decision.DecisionMaker
	transcript *transcript
}

func (n narrated) Decide(ctx context.Context, view decision.View, choice decision.Choice) (any, error) {
	answer, err := n.inner.Decide(ctx, view, choice)
	if err == nil {
		n.transcript.choice(view, choice, answer)
	}
	return answer, err
}
