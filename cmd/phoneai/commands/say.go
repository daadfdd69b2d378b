package commands

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/saker-ai/phoneai-client/internal/protocol"
	"github.com/saker-ai/phoneai-client/pkg/realtime"
	"github.com/saker-ai/phoneai-client/pkg/runtime"
)

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Send one message and print the agent reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSay,
}

var sayTimeout time.Duration

func init() {
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 30*time.Second, "time to wait for the reply")
}

func runSay(cmd *cobra.Command, args []string) error {
	var sawLoading atomic.Bool
	replied := make(chan realtime.Snapshot, 1)
	rt, err := newRuntime(true, runtime.WithCallbacks(realtime.Callbacks{
		OnChange: func(s realtime.Snapshot) {
			// loading only turns on after our own send
			if s.Loading {
				sawLoading.Store(true)
				return
			}
			if sawLoading.Load() {
				select {
				case replied <- s:
				default:
				}
			}
		},
	}))
	if err != nil {
		return err
	}
	defer shutdown(rt)

	rt.Start()
	if err := waitReady(cmd.Context(), rt.Client(), sayTimeout); err != nil {
		return err
	}
	if err := rt.Client().SendTextMessage(strings.Join(args, " ")); err != nil {
		return err
	}

	select {
	case s := <-replied:
		if s.LastError != "" {
			return errors.New(s.LastError)
		}
		reply := lastAgentText(s.History)
		if reply == "" {
			return errors.New("agent sent no text reply")
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	case <-time.After(sayTimeout):
		return fmt.Errorf("no reply within %s", sayTimeout)
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}

func lastAgentText(history []protocol.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == protocol.RoleUser {
			return ""
		}
		if text := history[i].Text(); text != "" {
			return text
		}
	}
	return ""
}
