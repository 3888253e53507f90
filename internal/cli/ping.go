package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/engine"
	"github.com/roach88/ringtrail/internal/eventbus"
	"github.com/roach88/ringtrail/internal/lifecycle"
	"github.com/roach88/ringtrail/internal/ping"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// PingOptions holds flags for the ping command.
type PingOptions struct {
	*RootOptions
	Config   string
	Database string
	Peer     string
	Name     string
	Input    string

	MQTTBroker  string
	MQTTTopic   string
	MQTTQoS     int
	MQTTTimeout time.Duration

	clock presence.TimeSource
	gen   txn.Generator
}

// DeliveryLine is one line of ping input: presence state broadcast by
// another replica.
type DeliveryLine struct {
	Transaction txn.Transaction `json:"transaction"`
	From        string          `json:"from"`
	State       json.RawMessage `json:"state"`
}

// PingResult summarizes a ping run.
type PingResult struct {
	Contract ring.ContractKey `json:"contract"`
	Location ring.Location    `json:"location"`
	Applied  int              `json:"applied"`
	Failed   int              `json:"failed"`
	Skipped  int              `json:"skipped"`
	State    *presence.State  `json:"state"`
}

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	return newPingCommand(&PingOptions{
		RootOptions: rootOpts,
		clock:       presence.SystemClock{},
		gen:         txn.UUIDv7Generator{},
	})
}

func newPingCommand(opts *PingOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Run a local ping presence replica",
		Long: `Run one replica of the ping presence contract. Presence state broadcast
by other replicas is read as JSON lines from --input, one delivery per line:

  {"transaction":"<tx>","from":"<peer>","state":{"alice":"2024-03-01T12:00:00Z"}}

Every delivery is merged into the local state and its receipt is recorded as
a lifecycle event, to the journal when --db is set and to an MQTT broker
when --mqtt-broker is set. With --name the replica also stamps its own
presence every configured frequency. The surviving state is printed when the
input ends.

Examples:
  ringtrail ping --config ping.yaml --peer 3yZe7d --input deliveries.jsonl
  ringtrail ping --config ping.yaml --peer 3yZe7d --name alice --db ./journal.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "ping options YAML file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Peer, "peer", "", "base58 id of the owning peer (required)")
	_ = cmd.MarkFlagRequired("peer")
	cmd.Flags().StringVar(&opts.Name, "name", "", "presence name to stamp every frequency")
	cmd.Flags().StringVar(&opts.Input, "input", "-", "delivery lines file, or - for stdin")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database to record events in")
	cmd.Flags().StringVar(&opts.MQTTBroker, "mqtt-broker", "", "MQTT broker URL to publish events to")
	cmd.Flags().StringVar(&opts.MQTTTopic, "mqtt-topic", eventbus.DefaultTopicPrefix, "MQTT topic prefix")
	cmd.Flags().IntVar(&opts.MQTTQoS, "mqtt-qos", 0, "MQTT quality of service (0-2)")
	cmd.Flags().DurationVar(&opts.MQTTTimeout, "mqtt-timeout", eventbus.DefaultPublishTimeout, "longest wait for the broker to connect or acknowledge one event")

	return cmd
}

func runPing(opts *PingOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.Logger(cmd.ErrOrStderr())

	pingOpts, err := ping.LoadOptionsFile(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load ping options", err)
	}
	self, err := ring.ParsePeerID(opts.Peer)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --peer", err)
	}

	sink, closeSinks, err := openSinks(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	rec := lifecycle.NewRecorder(opts.gen, opts.clock, sink)
	contract, err := ping.NewContract(pingOpts, opts.clock, rec, self)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create contract", err)
	}

	result := PingResult{Contract: contract.Key(), Location: contract.Key().Location()}
	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(func(it engine.Item, _ presence.Delta, err error) {
			if it.Type != engine.ItemDelivery {
				return
			}
			if err != nil {
				result.Failed++
				return
			}
			result.Applied++
		}),
	}
	if opts.Name != "" {
		engOpts = append(engOpts, engine.WithHeartbeat(opts.Name))
	}
	eng := engine.New(contract, engOpts...)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	skipped, readErr := feedDeliveries(cmd, opts.Input, contract, eng, logger)
	eng.Stop()
	runErr := <-done
	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read deliveries", readErr)
	}
	if runErr != nil {
		return WrapExitError(ExitCommandError, "engine stopped", runErr)
	}

	result.Skipped = skipped
	result.State = contract.Snapshot()
	return out.Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Contract: %s (location %s)\n", result.Contract, result.Location)
		fmt.Fprintf(w, "Deliveries: %d applied, %d failed, %d skipped\n", result.Applied, result.Failed, result.Skipped)
		fmt.Fprintf(w, "Presence (%d):\n", result.State.Len())
		return result.State.Render(w)
	})
}

// openSinks builds the event sink for the configured destinations. The
// returned func releases them.
func openSinks(ctx context.Context, opts *PingOptions, logger *slog.Logger) (eventbus.Sink, func(), error) {
	var (
		sinks   eventbus.FanOut
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if opts.Database != "" {
		j, err := openJournal(ctx, opts.Database)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, j)
		closers = append(closers, func() {
			if err := j.Close(); err != nil {
				logger.Error("error closing journal", "error", err)
			}
		})
	}

	if opts.MQTTBroker != "" {
		if opts.MQTTQoS < 0 || opts.MQTTQoS > 2 {
			closeAll()
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --mqtt-qos %d", opts.MQTTQoS))
		}
		if opts.MQTTTimeout <= 0 {
			closeAll()
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --mqtt-timeout %s", opts.MQTTTimeout))
		}
		m, err := eventbus.DialMQTT(ctx, eventbus.MQTTOptions{
			BrokerURL:      opts.MQTTBroker,
			ClientID:       "ringtrail-" + opts.Peer,
			TopicPrefix:    opts.MQTTTopic,
			QoS:            byte(opts.MQTTQoS),
			PublishTimeout: opts.MQTTTimeout,
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, WrapExitError(ExitCommandError, "failed to connect to MQTT broker", err)
		}
		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}

	return sinks, closeAll, nil
}

// feedDeliveries enqueues every valid input line and returns how many lines
// were skipped as malformed.
func feedDeliveries(cmd *cobra.Command, path string, c *ping.Contract, eng *engine.Engine, logger *slog.Logger) (int, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	skipped := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		d, err := parseDelivery(line, c.Key())
		if err != nil {
			logger.Warn("skipping delivery", "line", n, "error", err)
			skipped++
			continue
		}
		if !eng.Enqueue(d) {
			break
		}
	}
	return skipped, sc.Err()
}

func parseDelivery(line []byte, key ring.ContractKey) (ping.Delivery, error) {
	var dl DeliveryLine
	if err := json.Unmarshal(line, &dl); err != nil {
		return ping.Delivery{}, err
	}
	if len(dl.State) == 0 {
		return ping.Delivery{}, fmt.Errorf("delivery from %q has no state", dl.From)
	}
	return ping.Update{
		Transaction: dl.Transaction,
		Key:         key,
		From:        dl.From,
		State:       dl.State,
	}.Delivery()
}
