package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/tip"
	speechmodel "github.com/healthwise/companion/internal/model/speech"
	"github.com/healthwise/companion/internal/service/ai"
	"github.com/healthwise/companion/internal/service/weather"
)

func newRootCmd(a *app) *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "companionctl",
		Short:         "HealthWise companion command line tools",
		SilenceUsage:  true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "请求超时时间")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	root.AddCommand(
		newChatCmd(a),
		newSymptomCmd(a, withTimeout),
		newWeatherCmd(a, withTimeout),
		newLocationCmd(a, withTimeout),
		newSpeakCmd(a, withTimeout),
		newTipCmd(),
		newTokenCmd(a),
	)
	return root
}

type timeoutFunc func(cmd *cobra.Command) (context.Context, context.CancelFunc)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newChatCmd(a *app) *cobra.Command {
	var (
		userID    string
		sessionID string
		speak     bool
		accept    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the companion; without a message starts an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.companion(ctx, speak)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			turn := func(message string) error {
				res, err := svc.TurnStream(ctx, userID, sessionID, message, func(delta string) {
					fmt.Fprint(out, delta)
				})
				if err != nil {
					return err
				}
				sessionID = res.SessionID
				if res.Type == "symptom_analysis" && res.Analysis != nil {
					fmt.Fprintln(out, res.TextResponse)
					fmt.Fprintf(out, "  causes: %s\n  advice: %s\n", strings.Join(res.Analysis.PossibleCauses, ", "), res.Analysis.Advice)
				} else {
					fmt.Fprintln(out)
				}
				if offer := res.ReminderOffer; offer != nil {
					if !accept {
						fmt.Fprintf(out, "[reminder offered: %s: %s] rerun with --accept-reminders to save\n", offer.Symptom, offer.Advice)
					} else if saved, err := a.reminders().Set(ctx, userID, offer.Symptom, offer.Advice); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), "save reminder:", err)
					} else {
						fmt.Fprintf(out, "[reminder set: %s]\n", saved.Symptom)
					}
				}
				if res.HistoryCleared {
					fmt.Fprintln(out, "[history cleared]")
				}
				if res.AudioData != "" {
					fmt.Fprintf(out, "[audio: %d bytes data uri]\n", len(res.AudioData))
				}
				return nil
			}

			if len(args) > 0 {
				return turn(strings.Join(args, " "))
			}

			fmt.Fprintln(out, "输入消息，空行或 Ctrl-D 退出")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}
				if err := turn(line); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), ai.UnavailableMessage, err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "用户 ID")
	cmd.Flags().StringVar(&sessionID, "session", "", "会话 ID，留空使用最近的会话")
	cmd.Flags().BoolVar(&speak, "speech", false, "为回复合成语音")
	cmd.Flags().BoolVar(&accept, "accept-reminders", false, "自动保存模型建议的提醒")
	return cmd
}

func newSymptomCmd(a *app, withTimeout timeoutFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "symptom <description>",
		Short: "Run the symptom checker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			m, err := a.chatModel(ctx)
			if err != nil {
				return err
			}
			flow, err := ai.NewSymptomFlow(ctx, m, a.logger)
			if err != nil {
				return err
			}
			analysis, err := flow.Check(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), analysis)
		},
	}
}

func newWeatherCmd(a *app, withTimeout timeoutFunc) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "weather <location>",
		Short: "Show the weather reading with health advice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := a.init(ctx); err != nil {
				return err
			}
			var advisor weather.Advisor
			if m, err := a.chatModel(ctx); err == nil {
				flow, err := ai.NewWeatherAdviceFlow(ctx, m, a.logger)
				if err != nil {
					return err
				}
				advisor = flow
			}
			svc := weather.NewService(weather.NewMockProvider(seed), advisor, nil, 0, a.logger)
			reading, err := svc.Get(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reading)
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "模拟天气的随机种子")
	return cmd
}

func newLocationCmd(a *app, withTimeout timeoutFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "location <lat> <lon>",
		Short: "Resolve coordinates to a city name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q: %w", args[0], err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q: %w", args[1], err)
			}
			if fields := ai.ValidateCoordinates(lat, lon); fields != nil {
				return fmt.Errorf("invalid coordinates: %v", fields)
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			m, err := a.chatModel(ctx)
			if err != nil {
				return err
			}
			flow, err := ai.NewLocationFlow(ctx, m)
			if err != nil {
				return err
			}
			city, err := flow.City(ctx, lat, lon)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), city)
			return nil
		},
	}
}

func newSpeakCmd(a *app, withTimeout timeoutFunc) *cobra.Command {
	var (
		voice  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize speech and write the audio to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			synth, err := a.synthesizer(ctx)
			if err != nil {
				return err
			}
			resp, err := synth.Synthesize(ctx, &speechmodel.TTSRequest{
				SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
				Text:      strings.Join(args, " "),
				Voice:     voice,
			})
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = fmt.Sprintf("speech-%s.%s", time.Now().Format("20060102-150405"), resp.Format)
			}
			if err := os.WriteFile(path, resp.AudioData, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s, %dms) to %s\n", len(resp.AudioData), resp.Format, resp.Duration, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "声音 ID，默认使用配置")
	cmd.Flags().StringVarP(&output, "out", "o", "", "输出文件路径")
	return cmd
}

func newTipCmd() *cobra.Command {
	var (
		date string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "tip",
		Short: "Print the tip of the day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := tip.NewMemoryStore()
			if all {
				tips, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tips)
			}

			day := time.Now()
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", date, err)
				}
				day = parsed
			}
			t, err := store.Today(cmd.Context(), day)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "日期 YYYY-MM-DD")
	cmd.Flags().BoolVar(&all, "all", false, "列出全部提示")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			verifier := middleware.NewVerifier(a.cfg.Auth)
			if verifier == nil {
				return fmt.Errorf("AUTH_JWT_SECRET is not set")
			}
			now := time.Now()
			token, err := verifier.Issue(userID, jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "令牌的 subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "有效期")
	return cmd
}
