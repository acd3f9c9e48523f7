package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"paddock/internal/app"
	"paddock/internal/db"
	"paddock/internal/domain"
	"paddock/internal/engine"
	"paddock/internal/migrate"
	"paddock/internal/repo"
	"paddock/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pdk",
	Short: "Paddock CLI",
	Long: `Paddock runs turn-based selection processes for shared stable duties.
Core concepts:
- Workspace: your .paddock directory holding the database; per-stable config lives in the DB.
- Stable: the group that owns members, routine slots, and selection processes.
- Members: the roster; organizers manage processes, members take turns.
- Slots: dated routine instances (feeding, mucking out, evening check) waiting to be claimed.
- Process: a draft turn order computed by an algorithm (manual, quota_based, points_balance, fair_rotation); once started, members claim slots on their turn.
- Turns: exactly one member is active at a time; completing the last turn completes the process.
- Points: every claimed slot earns points, which the points_balance algorithm uses to put low scorers first.
- Event log: diary of changes, view with 'pdk log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PADDOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("stable", "", "stable id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("stable", rootCmd.PersistentFlags().Lookup("stable"))
}

func registerCommands() {
	rootCmd.AddCommand(stableCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(slotCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveStableAndConfig(ctx, workspace, viper.GetString("stable"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func stableCmd() *cobra.Command {
	st := &cobra.Command{Use: "stable", Short: "Manage stables"}
	st.AddCommand(stableListCmd())
	st.AddCommand(stableCreateCmd())
	st.AddCommand(stableShowCmd())
	st.AddCommand(stableConfigCmd())
	return st
}

func stableListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStables(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func stableCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create stable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			s, err := e.InitStable(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(s)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "stable id")
	cmd.Flags().StringVar(&name, "name", "", "stable name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stableShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active stable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetStable(ctx, e.Config.Stable.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func stableConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show stable config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func memberCmd() *cobra.Command {
	mbr := &cobra.Command{Use: "member", Short: "Manage the roster"}
	mbr.AddCommand(memberAddCmd())
	mbr.AddCommand(memberListCmd())
	mbr.AddCommand(memberRemoveCmd())
	return mbr
}

func memberAddCmd() *cobra.Command {
	var userID, userName, userEmail, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a roster member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, e.Config.Stable.ID, domain.Member{
					UserID:    userID,
					UserName:  userName,
					UserEmail: userEmail,
					Role:      role,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "member user id")
	cmd.Flags().StringVar(&userName, "name", "", "member name")
	cmd.Flags().StringVar(&userEmail, "email", "", "member email")
	cmd.Flags().StringVar(&role, "role", "member", "role (organizer|member)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roster members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				members, err := e.Repo.ListMembers(ctx, e.Config.Stable.ID)
				if err != nil {
					return err
				}
				points, err := e.Repo.PointsSnapshot(ctx, e.Config.Stable.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Name", "Role", "Points", "Joined"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.UserID, m.UserName, m.Role, points[m.UserID], m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberRemoveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a roster member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, e.Config.Stable.ID, userID, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "member user id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func slotCmd() *cobra.Command {
	slot := &cobra.Command{Use: "slot", Short: "Manage routine slots"}
	slot.AddCommand(slotAddCmd())
	slot.AddCommand(slotListCmd())
	slot.AddCommand(slotReleaseCmd())
	return slot
}

func slotAddCmd() *cobra.Command {
	var title string
	var dates []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Publish routine instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slots, err := e.AddRoutineInstances(ctx, engine.SlotCreateOptions{
					StableID: e.Config.Stable.ID,
					Title:    title,
					Dates:    dates,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(slots)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "routine title")
	cmd.Flags().StringArrayVar(&dates, "date", []string{}, "scheduled date YYYY-MM-DD (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func slotListCmd() *cobra.Command {
	var f repo.InstanceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routine slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.StableID == "" {
					f.StableID = e.Config.Stable.ID
				}
				slots, err := e.Repo.ListInstances(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(slots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Date", "Status", "Assignee"})
				for _, in := range slots {
					assignee := ""
					if in.AssignedTo != nil {
						assignee = *in.AssignedTo
					}
					tw.AppendRow(table.Row{in.ID, in.Title, in.ScheduledDate, in.Status, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.From, "from", "", "earliest date filter")
	cmd.Flags().StringVar(&f.To, "to", "", "latest date filter")
	cmd.Flags().BoolVar(&f.OnlyAvailable, "available", false, "only unassigned slots")
	return cmd
}

func slotReleaseCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release an assigned slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slot, err := e.ReleaseSlot(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(slot)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "slot id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func processCmd() *cobra.Command {
	prc := &cobra.Command{Use: "process", Short: "Manage selection processes"}
	prc.AddCommand(processCreateCmd())
	prc.AddCommand(processListCmd())
	prc.AddCommand(processShowCmd())
	prc.AddCommand(processStartCmd())
	prc.AddCommand(processCompleteTurnCmd())
	prc.AddCommand(processCancelCmd())
	prc.AddCommand(processClaimCmd())
	return prc
}

func processCreateCmd() *cobra.Command {
	var name, desc, algorithm, start, end string
	var order []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create selection process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProcess(ctx, engine.ProcessCreateOptions{
					StableID:       e.Config.Stable.ID,
					Name:           name,
					Description:    desc,
					Algorithm:      algorithm,
					SelectionStart: start,
					SelectionEnd:   end,
					Order:          order,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "process name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "manual|quota_based|points_balance|fair_rotation")
	cmd.Flags().StringVar(&start, "start", "", "selection window start YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "selection window end YYYY-MM-DD")
	cmd.Flags().StringArrayVar(&order, "order", []string{}, "member user id in turn order (repeatable, manual only)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func processListCmd() *cobra.Command {
	var f repo.ProcessFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List selection processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.StableID == "" {
					f.StableID = e.Config.Stable.ID
				}
				items, err := e.Repo.ListProcesses(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Algorithm", "Status", "Window"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Algorithm, p.Status, p.SelectionStart + ".." + p.SelectionEnd})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Algorithm, "algorithm", "", "algorithm filter")
	return cmd
}

func processShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show selection process with turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProcess(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func processStartCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start selection process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.StartProcess(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func processCompleteTurnCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "complete-turn",
		Short: "Complete the active turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CompleteCurrentTurn(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func processCancelCmd() *cobra.Command {
	var id, reason string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel selection process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CancelProcess(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id")
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func processClaimCmd() *cobra.Command {
	var id, slotID string
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a slot during your turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slot, err := e.ClaimSlot(ctx, id, slotID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(slot)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id")
	cmd.Flags().StringVar(&slotID, "slot", "", "slot id")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("slot")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: process changes, turn handovers, claims, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Stable.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				secret := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSON(map[string]string{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"secret":   secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveStableAndConfig(cmd.Context(), workspace, viper.GetString("stable"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			log := logrus.New()
			log.SetFormatter(&logrus.JSONFormatter{})
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PADDOCK_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
				Logger:                 log,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PADDOCK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: log})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e, log)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Paddock API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}
