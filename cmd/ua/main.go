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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"urbanaid/internal/app"
	"urbanaid/internal/chat"
	"urbanaid/internal/config"
	"urbanaid/internal/db"
	"urbanaid/internal/domain"
	"urbanaid/internal/gateway"
	"urbanaid/internal/migrate"
	"urbanaid/internal/repo"
	"urbanaid/internal/server"
	"urbanaid/internal/views"
)

var rootCmd = &cobra.Command{
	Use:   "ua",
	Short: "UrbanAid CLI",
	Long: `UrbanAid reports civic issues and tracks them to resolution.
Citizens file reports (road damage, streetlights, garbage, water leaks and
more), volunteers claim nearby reports and walk them through
created -> assigned -> in-progress -> completed, and admins see everything.
State lives on the backend; this client keeps a session and a local action
log in the .urbanaid workspace directory.`,
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
	viper.SetEnvPrefix("URBANAID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("backend", "", "backend base URL (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(signinCmd())
	rootCmd.AddCommand(signoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(volunteerCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveStubCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default urbanaid.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.InitWorkspace(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func signinCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Session.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actor)
				}
				name := actor.Name
				if name == "" {
					name = email
				}
				fmt.Printf("signed in as %s (%s)\n", name, actor.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func signoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.SignOut(ctx); err != nil {
					return err
				}
				fmt.Println("signed out")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, ok, err := a.Session.Current(ctx)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("not signed in")
					return nil
				}
				return printJSONOrTable(actor)
			})
		},
	}
}

func registerCmd() *cobra.Command {
	var reg domain.Registration
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (citizen or volunteer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.Role = domain.ParseRole(role)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.Register(ctx, reg); err != nil {
					return err
				}
				fmt.Printf("registered %s as %s; run ua signin\n", reg.Email, reg.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "full name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.Mobile, "mobile", "", "10-digit mobile starting 6-9")
	cmd.Flags().StringVar(&role, "role", "citizen", "citizen or volunteer")
	cmd.Flags().StringVar(&reg.Area, "area", "", "service area (volunteer)")
	cmd.Flags().Float64Var(&reg.Latitude, "lat", 0, "latitude (volunteer)")
	cmd.Flags().Float64Var(&reg.Longitude, "lng", 0, "longitude (volunteer)")
	cmd.Flags().StringVar(&reg.Skill, "skill", "", "skill, matched against report categories (volunteer)")
	cmd.Flags().StringVar(&reg.Type, "vtype", "", "volunteer type, defaults to GENERAL_HELP")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("mobile")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "File and track reports"}
	rep.AddCommand(reportCreateCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportNearbyCmd())
	rep.AddCommand(reportGetCmd())
	rep.AddCommand(reportClaimCmd())
	rep.AddCommand(reportStatusCmd())
	return rep
}

func reportCreateCmd() *cobra.Command {
	var d domain.Draft
	var category, imagePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if category == "" {
					category = a.Config.Defaults.Category
				}
				d.Category = domain.ParseCategory(category)
				if d.Address == "" {
					d.Address = a.Config.Defaults.Address
				}
				var image *os.File
				imageName := ""
				if imagePath != "" {
					f, err := os.Open(imagePath)
					if err != nil {
						return err
					}
					defer f.Close()
					image = f
					imageName = imagePath
				}
				var r domain.Report
				var err error
				if image != nil {
					r, err = a.Engine.SubmitReport(ctx, d, image, imageName)
				} else {
					r, err = a.Engine.SubmitReport(ctx, d, nil, "")
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&d.Description, "description", "", "what happened (10-500 characters)")
	cmd.Flags().StringVar(&category, "category", "", "road-damage, streetlight, garbage, graffiti, water-leak, noise or other")
	cmd.Flags().StringVar(&d.Address, "address", "", "street address")
	cmd.Flags().Float64Var(&d.Latitude, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&d.Longitude, "lng", 0, "longitude")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a photo to attach")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func reportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reports, err := a.Engine.MyReports(ctx)
				if err != nil {
					return err
				}
				return printReports(reports)
			})
		},
	}
}

func reportNearbyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nearby",
		Short: "List unclaimed reports near you (volunteer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reports, err := a.Engine.Nearby(ctx)
				if err != nil {
					return err
				}
				return printReports(reports)
			})
		},
	}
}

func reportGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.Report(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func reportClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim an unassigned report (volunteer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("report id required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.Claim(ctx, args[0])
				var conflict *gateway.ConflictError
				if errors.As(err, &conflict) {
					fmt.Println("claim lost:", conflict.Error())
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("claimed report %s\n", r.ID)
				return printJSONOrTable(r)
			})
		},
	}
}

func reportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <new-status>",
		Short: "Advance a claimed report (assigned, in-progress, completed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				r, err := a.Engine.UpdateStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Status summary for your role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Session.RequireActor(ctx)
				if err != nil {
					return err
				}
				switch actor.Role {
				case domain.RoleVolunteer:
					return volunteerDashboard(ctx, a)
				default:
					return citizenDashboard(ctx, a)
				}
			})
		},
	}
}

func citizenDashboard(ctx context.Context, a *app.App) error {
	reports, err := a.Engine.MyReports(ctx)
	if err != nil {
		return err
	}
	counts := views.CountByStatus(reports)
	if viper.GetBool("json") {
		return printJSON(map[string]any{"counts": counts, "reports": reports})
	}
	fmt.Printf("reports: %d total, %d pending, %d resolved\n",
		counts.Total, counts.Pending, counts.Resolved)
	return printReports(reports)
}

func volunteerDashboard(ctx context.Context, a *app.App) error {
	mine, err := a.Engine.MyReports(ctx)
	if err != nil {
		return err
	}
	nearby, err := a.Engine.Nearby(ctx)
	if err != nil {
		return err
	}
	profile, perr := a.Gateway.MyVolunteerProfile(ctx)
	matches := map[string]bool{}
	if perr == nil {
		matches = views.SkillMatchSet(profile.Skill, nearby)
	}
	counts := views.CountByStatus(mine)
	if viper.GetBool("json") {
		return printJSON(map[string]any{
			"counts":       counts,
			"mine":         mine,
			"nearby":       nearby,
			"skillMatches": matches,
			"profile":      profile,
		})
	}
	fmt.Printf("assigned to you: %d (in progress %d, completed %d)\n",
		counts.Assigned+counts.InProgress, counts.InProgress, counts.Completed)
	active := append(views.ByStatus(mine, domain.StatusAssigned),
		views.ByStatus(mine, domain.StatusInProgress)...)
	if len(active) > 0 {
		if err := printReports(active); err != nil {
			return err
		}
	}
	if perr == nil && profile.Skill != "" {
		fmt.Printf("nearby (skill %q highlighted):\n", profile.Skill)
	} else {
		fmt.Println("nearby:")
	}
	return printNearby(nearby, matches)
}

func volunteerCmd() *cobra.Command {
	vol := &cobra.Command{Use: "volunteer", Short: "Volunteer profile"}
	vol.AddCommand(&cobra.Command{
		Use:   "profile",
		Short: "Show your volunteer profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Gateway.MyVolunteerProfile(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	var available bool
	avail := &cobra.Command{
		Use:   "availability",
		Short: "Toggle your availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Session.RequireActor(ctx)
				if err != nil {
					return err
				}
				if err := a.Gateway.SetAvailability(ctx, actor.ID, available); err != nil {
					return err
				}
				fmt.Printf("availability set to %v\n", available)
				return nil
			})
		},
	}
	avail.Flags().BoolVar(&available, "on", true, "available for new reports")
	vol.AddCommand(avail)
	return vol
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{Use: "admin", Short: "Admin listings"}
	adm.AddCommand(&cobra.Command{
		Use:   "reports",
		Short: "List every report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reports, err := a.Engine.AdminReports(ctx)
				if err != nil {
					return err
				}
				return printReports(reports)
			})
		},
	})
	adm.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "List every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.AdminUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	})
	adm.AddCommand(&cobra.Command{
		Use:   "volunteers",
		Short: "List every volunteer profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				profiles, err := a.Engine.AdminVolunteers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(profiles)
			})
		},
	})
	return adm
}

func chatCmd() *cobra.Command {
	ch := &cobra.Command{Use: "chat", Short: "Per-report chat (local simulation)"}
	ch.AddCommand(&cobra.Command{
		Use:   "send <report-id> <message>",
		Short: "Send a message on a report thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Session.RequireActor(ctx)
				if err != nil {
					return err
				}
				mock := chat.NewMock()
				if _, err := mock.Send(ctx, args[0], actor.ID, args[1]); err != nil {
					return err
				}
				thread, err := mock.Thread(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(thread)
			})
		},
	})
	return ch
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Local action log"}
	var n int
	var evtType, reportID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Events.Latest(ctx, n, evtType, reportID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&evtType, "type", "", "action type filter")
	tail.Flags().StringVar(&reportID, "report", "", "report id filter")
	log.AddCommand(tail)
	return log
}

func serveStubCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Run a local stub backend for development and demos",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Stub.Addr
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Repo:      repo.Repo{DB: conn},
				Workspace: workspace,
				Auth:      server.AuthConfig{JWTSecret: cfg.Stub.JWTSecret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving UrbanAid stub backend on http://%s\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config stub.addr)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("backend"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseStatus(s string) (domain.Status, error) {
	status := domain.Status(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")))
	if domain.StatusIndex(status) < 0 {
		return "", fmt.Errorf("unknown status %q (want assigned, in-progress or completed)", s)
	}
	return status, nil
}

func printReports(reports []domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(reports)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Address", "Assignee"})
	for _, r := range reports {
		tw.AppendRow(table.Row{r.ID, r.Title, r.Category, r.Status, r.Location.Address, r.VolunteerID})
	}
	tw.Render()
	return nil
}

func printNearby(reports []domain.Report, matches map[string]bool) error {
	if viper.GetBool("json") {
		return printJSON(reports)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Address", "Skill match"})
	for _, r := range reports {
		mark := ""
		if matches[r.ID] {
			mark = "yes"
		}
		tw.AppendRow(table.Row{r.ID, r.Title, r.Category, r.Status, r.Location.Address, mark})
	}
	tw.Render()
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

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
