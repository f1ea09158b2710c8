package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "kickoff/internal/cli"
	"kickoff/internal/config"
	"kickoff/internal/game"
	"kickoff/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	adminToken := cfg.AdminToken

	setupTerminal()

	root := &cobra.Command{
		Use:          "kick",
		Short:        "Kickoff football manager client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newTeamCmd(&apiBase),
		newFacilityCmd(&apiBase),
		newPlayerCmd(&apiBase),
		newCoachCmd(&apiBase),
		newLeagueCmd(&apiBase),
		newMatchCmd(&apiBase),
		newSyncCmd(&apiBase),
		newAdminCmd(&apiBase, &adminToken),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func currentTeam() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("team required: %w", err)
	}
	return sess, nil
}

func parseID(label, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", label, raw)
	}
	return id, nil
}

func argOrPrompt(args []string, label string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	return promptRequired(label)
}

func newTeamCmd(apiBase *string) *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Create and inspect your team",
	}
	team.AddCommand(newTeamCreateCmd(apiBase))
	team.AddCommand(newTeamUseCmd(apiBase))
	team.AddCommand(newTeamShowCmd(apiBase))
	team.AddCommand(&cobra.Command{
		Use:   "forget",
		Short: "Forget the selected team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Team selection cleared.")
			return nil
		},
	})
	return team
}

func newTeamCreateCmd(apiBase *string) *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Found a new team and select it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := argOrPrompt(args, "Team name")
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			team, err := newClient(apiBase).CreateTeam(ctx, name, tier)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{TeamID: team.ID, TeamName: team.Name}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s founded in %s. Team selected.", team.Name, team.League.Tier))
			renderTeam(team)
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "starting league tier (default local-3)")
	return cmd
}

func newTeamUseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "use <team-id>",
		Short: "Select an existing team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("team", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			team, err := newClient(apiBase).Team(ctx, id)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{TeamID: team.ID, TeamName: team.Name}); err != nil {
				return err
			}
			printSuccess("Now managing " + team.Name + ".")
			return nil
		},
	}
}

func newTeamShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Show the selected team",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			team, err := client.Team(ctx, sess.TeamID)
			if err != nil {
				return err
			}
			renderTeam(team)
			facilities, err := client.Facilities(ctx, sess.TeamID)
			if err != nil {
				return err
			}
			renderFacilities(facilities)
			return nil
		},
	}
}

func newFacilityCmd(apiBase *string) *cobra.Command {
	facility := &cobra.Command{
		Use:     "facility",
		Short:   "Collect from and upgrade facilities",
		Aliases: []string{"fac"},
	}
	facility.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List facilities with collectable coins",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			rows, err := newClient(apiBase).Facilities(ctx, sess.TeamID)
			if err != nil {
				return err
			}
			renderFacilities(rows)
			return nil
		},
	})
	facility.AddCommand(&cobra.Command{
		Use:   "collect <facility|all>",
		Short: "Collect accrued coins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			targets, err := facilityTargets(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			var total int64
			for _, ft := range targets {
				res, err := client.Collect(ctx, sess.TeamID, ft)
				if err != nil {
					if err := queueOnNetworkError(err, syncq.Command{TeamID: sess.TeamID, Facility: ft, QueuedAt: time.Now()}); err != nil {
						return err
					}
					continue
				}
				total += res.Collected
				printInfo(fmt.Sprintf("%-16s +%s", ft, comma(res.Collected)))
			}
			printSuccess(fmt.Sprintf("Collected %s coins.", comma(total)))
			return nil
		},
	})
	facility.AddCommand(&cobra.Command{
		Use:   "upgrade <facility>",
		Short: "Upgrade a facility by one level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ft, err := game.ParseFacilityType(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(apiBase).Upgrade(ctx, sess.TeamID, ft)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is now level %d (cost %s, %s coins left).",
				res.Facility, res.Level, comma(res.Cost), comma(res.Coins)))
			return nil
		},
	})
	return facility
}

func facilityTargets(arg string) ([]game.FacilityType, error) {
	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		return game.FacilityTypes(), nil
	}
	ft, err := game.ParseFacilityType(arg)
	if err != nil {
		return nil, err
	}
	return []game.FacilityType{ft}, nil
}

// queueOnNetworkError keeps a collection for `kick sync` when the server
// could not be reached. Errors answered by the API are returned as is.
func queueOnNetworkError(err error, c syncq.Command) error {
	if cl.StatusOf(err) != 0 {
		return err
	}
	if qerr := syncq.Push(c); qerr != nil {
		return fmt.Errorf("%w (queueing failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("Server unreachable, %s collection queued. Run `kick sync` later.", c.Facility))
	return nil
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay collections queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			replayed, remaining, failures := syncq.Replay(queue, func(c syncq.Command) error {
				res, err := client.Collect(ctx, c.TeamID, c.Facility)
				if err == nil {
					printInfo(fmt.Sprintf("%-16s +%s", c.Facility, comma(res.Collected)))
				}
				return err
			}, func(err error) bool {
				return cl.StatusOf(err) == 0
			})
			for _, err := range failures {
				printError(fmt.Sprintf("Sync failed: %v", err))
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

func newPlayerCmd(apiBase *string) *cobra.Command {
	player := &cobra.Command{
		Use:   "player",
		Short: "Manage the roster",
	}
	player.AddCommand(&cobra.Command{
		Use:   "recruit",
		Short: "Recruit a youth player from the academy",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := newClient(apiBase).Recruit(ctx, sess.TeamID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Recruited %s (%s, %d overall).", p.Name, p.Position, p.Overall))
			return nil
		},
	})
	player.AddCommand(newPlayerSignCmd(apiBase))
	player.AddCommand(&cobra.Command{
		Use:   "fire <player-id>",
		Short: "Release a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			pid, err := playerID(cmd, apiBase, sess.TeamID, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			remaining, err := newClient(apiBase).Fire(ctx, sess.TeamID, pid)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Player released. %d fires left this month.", remaining))
			return nil
		},
	})
	player.AddCommand(&cobra.Command{
		Use:   "renew <player-id>",
		Short: "Renew a player contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			pid, err := playerID(cmd, apiBase, sess.TeamID, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(apiBase).RenewPlayer(ctx, sess.TeamID, pid)
			if err != nil {
				return err
			}
			renderRenewal(res)
			return nil
		},
	})
	return player
}

func newPlayerSignCmd(apiBase *string) *cobra.Command {
	var in game.SigningInput
	cmd := &cobra.Command{
		Use:   "sign [name]",
		Short: "Sign a player from the transfer shop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			name, err := argOrPrompt(args, "Player name")
			if err != nil {
				return err
			}
			in.Name = name
			if !cmd.Flags().Changed("cost") {
				cost, err := promptInt("Transfer fee", 0, 1_000_000_000)
				if err != nil {
					return err
				}
				in.Cost = int64(cost)
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := newClient(apiBase).Sign(ctx, sess.TeamID, in)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Signed %s (%s, %d overall) until %s.",
				p.Name, p.Position, p.Overall, p.Contract.ExpiresAt.Format(time.DateOnly)))
			return nil
		},
	}
	cmd.Flags().IntVar(&in.Age, "age", 24, "player age")
	cmd.Flags().IntVar(&in.Overall, "overall", 60, "overall rating")
	cmd.Flags().Int64Var(&in.Cost, "cost", 0, "transfer fee in coins")
	cmd.Flags().StringVar((*string)(&in.Position), "position", string(game.PositionMF), "GK, DF, MF or FW")
	return cmd
}

// playerID accepts a full id or the short prefix shown by `team show`.
func playerID(cmd *cobra.Command, apiBase *string, teamID uuid.UUID, raw string) (uuid.UUID, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if id, err := uuid.Parse(raw); err == nil {
		return id, nil
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	team, err := newClient(apiBase).Team(ctx, teamID)
	if err != nil {
		return uuid.Nil, err
	}
	var match uuid.UUID
	for _, p := range team.Roster {
		if strings.HasPrefix(p.ID.String(), raw) {
			if match != uuid.Nil {
				return uuid.Nil, fmt.Errorf("player id %q is ambiguous", raw)
			}
			match = p.ID
		}
	}
	if match == uuid.Nil {
		return uuid.Nil, fmt.Errorf("no player matches %q", raw)
	}
	return match, nil
}

func renderRenewal(res game.RenewalResult) {
	printSuccess(fmt.Sprintf("Renewed for %s coins until %s (%s coins left).",
		comma(res.Cost), res.ExpiresAt.Format(time.DateOnly), comma(res.Coins)))
}

func newCoachCmd(apiBase *string) *cobra.Command {
	coach := &cobra.Command{
		Use:   "coach",
		Short: "Coach contract commands",
	}
	coach.AddCommand(&cobra.Command{
		Use:   "renew",
		Short: "Renew the coach contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(apiBase).RenewCoach(ctx, sess.TeamID)
			if err != nil {
				return err
			}
			renderRenewal(res)
			return nil
		},
	})
	return coach
}

func newLeagueCmd(apiBase *string) *cobra.Command {
	league := &cobra.Command{
		Use:   "league",
		Short: "League ladder commands",
	}
	league.AddCommand(&cobra.Command{
		Use:   "register <tier>",
		Short: "Move the selected team into a tier with fresh stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			team, err := newClient(apiBase).RegisterLeague(ctx, sess.TeamID, args[0])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s registered in %s.", team.Name, team.League.Tier))
			return nil
		},
	})
	league.AddCommand(&cobra.Command{
		Use:   "table [tier]",
		Short: "Show a league table (defaults to your tier)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			var tier string
			if len(args) > 0 {
				tier = args[0]
			} else {
				sess, err := currentTeam()
				if err != nil {
					return err
				}
				team, err := client.Team(ctx, sess.TeamID)
				if err != nil {
					return err
				}
				tier = team.League.Tier.String()
			}
			rows, err := client.LeagueTable(ctx, tier)
			if err != nil {
				return err
			}
			renderLeagueTable(tier, rows)
			return nil
		},
	})
	league.AddCommand(&cobra.Command{
		Use:   "tiers",
		Short: "List the ladder from lowest to highest",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, t := range game.Tiers() {
				printInfo(fmt.Sprintf("%2d. %s", i+1, t))
			}
			return nil
		},
	})
	return league
}

func newMatchCmd(apiBase *string) *cobra.Command {
	match := &cobra.Command{
		Use:   "match",
		Short: "Play and follow matches",
	}
	match.AddCommand(newMatchPlayCmd(apiBase))
	match.AddCommand(&cobra.Command{
		Use:   "show <match-id>",
		Short: "Show a match with its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("match", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			m, err := newClient(apiBase).Match(ctx, id)
			if err != nil {
				return err
			}
			renderMatch(m)
			return nil
		},
	})
	match.AddCommand(newMatchLiveCmd(apiBase))
	match.AddCommand(&cobra.Command{
		Use:   "watch <match-id>",
		Short: "Follow a match minute by minute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("match", args[0])
			if err != nil {
				return err
			}
			return watchMatch(cmd, apiBase, id)
		},
	})
	return match
}

func newMatchPlayCmd(apiBase *string) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "play <opponent-id>",
		Short: "Challenge another team to a friendly at home",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentTeam()
			if err != nil {
				return err
			}
			away, err := parseID("team", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			m, err := newClient(apiBase).CreateMatch(ctx, sess.TeamID, away)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Kick off: %s vs %s at %s (match %s).",
				m.HomeTeamName, m.AwayTeamName, m.Stadium, m.ID))
			if !watch {
				return nil
			}
			return watchMatch(cmd, apiBase, m.ID)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the match live")
	return cmd
}

func newMatchLiveCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "live",
		Short: "List matches in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			matches, err := newClient(apiBase).LiveMatches(ctx, limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				printInfo("No matches in progress.")
				return nil
			}
			tbl := newTable("MATCH", "TIER", "HOME", "SCORE", "AWAY", "MIN")
			for _, m := range matches {
				tbl.Row(m.ID.String(), m.Tier.String(), truncate(m.HomeTeamName, 20),
					fmt.Sprintf("%d - %d", m.Score.Home, m.Score.Away),
					truncate(m.AwayTeamName, 20), strconv.Itoa(m.ClockMinute))
			}
			fmt.Println(tbl)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum matches to list")
	return cmd
}

func watchMatch(cmd *cobra.Command, apiBase *string, id uuid.UUID) error {
	var feed feedPrinter
	err := newClient(apiBase).WatchMatch(cmd.Context(), id, feed.print)
	if err != nil && cmd.Context().Err() != nil {
		printWarn("Stopped watching.")
		return nil
	}
	return err
}

func newAdminCmd(apiBase, adminToken *string) *cobra.Command {
	admin := &cobra.Command{
		Use:    "admin",
		Short:  "Operator commands",
		Hidden: true,
	}
	admin.PersistentFlags().StringVar(adminToken, "token", *adminToken, "admin bearer token")
	admin.AddCommand(&cobra.Command{
		Use:   "run <job>",
		Short: "Trigger a scheduled job now (economyTick, dailyMaintenance, leagueSweep)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(*adminToken) == "" {
				return fmt.Errorf("admin token required (--token or KICKOFF_ADMIN_TOKEN)")
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if err := newClient(apiBase).RunJob(ctx, *adminToken, args[0]); err != nil {
				return err
			}
			printSuccess("Job " + args[0] + " started.")
			return nil
		},
	})
	return admin
}
