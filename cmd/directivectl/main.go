// Command directivectl replays a fixture of directives through a real
// Sequencer wired with dummy handlers, for local inspection of routing,
// dialog cancellation, and blocking-policy admission without a live
// cloud connection.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	directive "github.com/aurora-voice/directive-core"
	"github.com/aurora-voice/directive-core/pipelineconfig"
	"github.com/aurora-voice/directive-core/sequencer"
	"github.com/aurora-voice/directive-core/telemetry"
)

type cli struct {
	Run     runCmd     `cmd:"" help:"Replay a directive fixture through a Sequencer."`
	Version versionCmd `cmd:"" help:"Print directivectl's version."`
}

type runCmd struct {
	Fixture string `arg:"" help:"Path to a JSON file containing an array of directives."`
	Policy  string `help:"Optional path to a YAML blocking-policy file." optional:""`
}

type versionCmd struct{}

func (versionCmd) Run() error {
	fmt.Println("directivectl dev")
	return nil
}

// fixtureDirective mirrors directive.Directive with JSON tags for
// fixture authoring.
type fixtureDirective struct {
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	MessageID       string `json:"message_id"`
	DialogRequestID string `json:"dialog_request_id"`
}

func (f fixtureDirective) toDirective() directive.Directive {
	return directive.Directive{
		Namespace:       f.Namespace,
		Name:            f.Name,
		MessageID:       f.MessageID,
		DialogRequestID: f.DialogRequestID,
		Unparsed:        fmt.Sprintf("%s.%s/%s", f.Namespace, f.Name, f.MessageID),
	}
}

func (r *runCmd) Run() error {
	raw, err := os.ReadFile(r.Fixture)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}

	var fixtures []fixtureDirective
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}

	counter := telemetry.NewCounter()
	logger := directive.NewFmtLogger(os.Stdout)
	reporter := &loggingExceptionReporter{logger: logger}

	seq, err := sequencer.New(
		sequencer.Dependencies{ExceptionReporter: reporter},
		sequencer.WithLogger(logger),
		sequencer.WithMetricRecorder(counter),
	)
	if err != nil {
		return fmt.Errorf("construct sequencer: %w", err)
	}
	defer seq.Shutdown()

	dummy := newEchoHandler()
	if !seq.AddHandler(dummy) {
		return fmt.Errorf("register echo handler: conflicting routing keys")
	}

	if r.Policy != "" {
		policyRaw, err := os.ReadFile(r.Policy)
		if err != nil {
			return fmt.Errorf("read policy file: %w", err)
		}
		cfg, err := pipelineconfig.ParsePolicySet(policyRaw)
		if err != nil {
			return fmt.Errorf("parse policy file: %w", err)
		}
		seq.RemoveHandler(dummy)
		if !seq.AddHandler(pipelineconfig.WithPolicyOverrides(dummy, cfg)) {
			return fmt.Errorf("register echo handler with overrides: conflicting routing keys")
		}
	}

	for _, f := range fixtures {
		d := f.toDirective()
		ok := seq.OnDirective(d)
		logger.Info("submitted message_id=%s accepted=%t", d.MessageID, ok)
	}

	for name, count := range counter.Snapshot() {
		logger.Info("metric %s=%d", name, count)
	}
	return nil
}

func main() {
	var c cli
	k := kong.Parse(&c,
		kong.Name("directivectl"),
		kong.Description("Local simulation harness for the directive dispatch pipeline."),
	)
	if err := k.Run(); err != nil {
		k.FatalIfErrorf(err)
	}
}
