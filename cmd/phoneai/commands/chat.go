package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saker-ai/phoneai-client/pkg/realtime"
	"github.com/saker-ai/phoneai-client/pkg/runtime"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the agent",
	Long: `Start an interactive chat. Each line is sent as a text message.

Commands:
  /reset           ask the agent to clear the conversation
  /audio <file>    send a 16-bit WAV file as one audio turn
  /history         print the conversation history
  /status          print the session state
  /reconnect       replace the connection
  /quit            exit`,
	RunE: runChat,
}

var chatConnectTimeout time.Duration

func init() {
	chatCmd.Flags().DurationVar(&chatConnectTimeout, "connect-timeout", 10*time.Second, "time to wait for the connection")
}

func runChat(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printer := newTranscript(out)
	rt, err := newRuntime(true, runtime.WithCallbacks(printer.callbacks()))
	if err != nil {
		return err
	}
	printer.setSampleRate(rt.Config().Audio.SampleRate)
	defer shutdown(rt)

	rt.Start()
	if err := waitReady(cmd.Context(), rt.Client(), chatConnectTimeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "connected to %s, /quit to exit\n", rt.Config().EndpointURL)

	return chatLoop(cmd.Context(), rt, cmd.InOrStdin(), out)
}

func chatLoop(ctx context.Context, rt *runtime.Runtime, in io.Reader, out io.Writer) error {
	client := rt.Client()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			// failures are already reported through OnWarning
			_ = client.SendTextMessage(line)
			continue
		}

		name, arg, _ := strings.Cut(line, " ")
		switch name {
		case "/quit", "/exit":
			return nil
		case "/reset":
			_ = client.ResetHistory()
		case "/history":
			if err := writeHistory(out, client.History()); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		case "/status":
			s := client.Snapshot()
			fmt.Fprintf(out, "state=%s ready=%t agent=%q loading=%t turns=%d\n",
				s.State, s.Ready, s.ActiveAgent, s.Loading, len(s.History))
			if s.LastError != "" {
				fmt.Fprintf(out, "last error: %s\n", s.LastError)
			}
		case "/reconnect":
			reconnectCtx, cancel := context.WithTimeout(ctx, chatConnectTimeout)
			err := rt.Reconnect(reconnectCtx)
			cancel()
			if err != nil {
				fmt.Fprintf(out, "! reconnect: %v\n", err)
			} else {
				fmt.Fprintln(out, "reconnected")
			}
		case "/audio":
			path := strings.TrimSpace(arg)
			if path == "" {
				fmt.Fprintln(out, "usage: /audio <file.wav>")
				continue
			}
			samples, err := loadAudioFile(path, rt.Config().Audio.SampleRate)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			if err := client.SendAudioMessage(samples); err != nil {
				fmt.Fprintf(out, "! audio: %v\n", err)
			}
		default:
			fmt.Fprintf(out, "unknown command %s\n", name)
		}
	}
	return scanner.Err()
}

func waitReady(ctx context.Context, client *realtime.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.WaitReady(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func shutdown(rt *runtime.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rt.Shutdown(ctx)
}
