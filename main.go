package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sabahroadcare/roadcare/auth"
	"github.com/sabahroadcare/roadcare/client"
	"github.com/sabahroadcare/roadcare/config"
	"github.com/sabahroadcare/roadcare/draft"
	"github.com/sabahroadcare/roadcare/form"
	"github.com/sabahroadcare/roadcare/localstore"
	"github.com/sabahroadcare/roadcare/location"
	"github.com/sabahroadcare/roadcare/mockapi"
	"github.com/sabahroadcare/roadcare/models"
)

type app struct {
	cfg        *config.Config
	store      localstore.Store
	tokens     *auth.TokenStore
	api        *client.Client
	draftStore *draft.Store
	resolver   *location.Resolver
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	var store localstore.Store
	if filepath.Ext(cfg.StorePath) == ".db" {
		store, err = localstore.NewSQLite(cfg.StorePath)
		if err != nil {
			return nil, err
		}
	} else {
		store = localstore.NewFile(cfg.StorePath)
	}
	tokens := auth.NewTokenStore(store)
	return &app{
		cfg:        cfg,
		store:      store,
		tokens:     tokens,
		api:        client.New(cfg, tokens),
		draftStore: draft.NewStore(store),
		resolver:   location.NewResolver(location.Unsupported{}, cfg.GoogleMapsAPIKey),
	}, nil
}

func (a *app) controller() *form.Controller {
	return form.NewController(a.draftStore, a.api, a.resolver,
		form.WithRedirectDelay(0),
		form.WithOnSuccess(func(r *models.SubmissionReceipt) {
			fmt.Printf("Your case %s is now in review. See `roadcare history`.\n", r.CaseID)
		}),
	)
}

func main() {
	root := &cobra.Command{
		Use:           "roadcare",
		Short:         "File and track Sabah road-damage reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(loginCmd(), submitCmd(), draftCmd(), historyCmd(), statsCmd(), mockServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			token, err := a.api.Login(context.Background(), email, password)
			if err != nil {
				return err
			}
			if err := a.tokens.SetToken(token); err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func submitCmd() *cobra.Command {
	var (
		top, far, closeUp string
		district, desc    string
		lat, lng          float64
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a road-damage report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := context.Background()
			c := a.controller()

			if found, fresh, err := c.RestoreDraft(); err != nil {
				log.Printf("restoring draft: %v", err)
			} else if found && fresh {
				fmt.Println("Draft restored.")
			}

			for i, path := range []string{top, far, closeUp} {
				if path == "" {
					continue
				}
				if _, err := c.Slot(i).BindFile(path); err != nil {
					return err
				}
			}
			if district != "" {
				if err := c.SetDistrict(district); err != nil {
					return err
				}
			}
			c.SetDescription(desc)
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				loc := c.PickLocation(ctx, location.Coordinates{Latitude: lat, Longitude: lng})
				fmt.Printf("Location: %s\n", loc.Address)
			}

			receipt, err := c.Submit(ctx)
			if err != nil {
				for field, msg := range c.Errors() {
					fmt.Printf("  %s: %s\n", field, msg)
				}
				return err
			}
			fmt.Printf("Report submitted. Case %s (%s)\n", receipt.CaseID, receipt.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&top, "top", "", "top view photo path")
	cmd.Flags().StringVar(&far, "far", "", "far view photo path")
	cmd.Flags().StringVar(&closeUp, "close", "", "close-up photo path")
	cmd.Flags().StringVar(&district, "district", "", "district name")
	cmd.Flags().StringVar(&desc, "description", "", "description (max 200 chars)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	return cmd
}

func draftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage the saved report draft",
	}

	var district, desc string
	var lat, lng float64
	save := &cobra.Command{
		Use:   "save",
		Short: "Save an in-progress report (photos are not persisted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			c := a.controller()
			if district != "" {
				if err := c.SetDistrict(district); err != nil {
					return err
				}
			}
			c.SetDescription(desc)
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				c.PickLocation(context.Background(), location.Coordinates{Latitude: lat, Longitude: lng})
			}
			if err := c.SaveDraft(); err != nil {
				return err
			}
			fmt.Println("Draft saved.")
			return nil
		},
	}
	save.Flags().StringVar(&district, "district", "", "district name")
	save.Flags().StringVar(&desc, "description", "", "description (max 200 chars)")
	save.Flags().Float64Var(&lat, "lat", 0, "latitude")
	save.Flags().Float64Var(&lng, "lng", 0, "longitude")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the saved draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			d, fresh, err := a.draftStore.Load()
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Println("No saved draft.")
				return nil
			}
			fmt.Printf("Draft %d (saved %s, fresh=%v)\n", d.ID, d.SavedAt.Format("2006-01-02 15:04"), fresh)
			fmt.Printf("  district:    %s\n", d.District)
			fmt.Printf("  description: %s\n", d.Description)
			if d.Location != nil {
				fmt.Printf("  location:    %s (%.6f, %.6f)\n", d.Location.Address, d.Location.Latitude, d.Location.Longitude)
			}
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.draftStore.Clear(); err != nil {
				return err
			}
			fmt.Println("Draft cleared.")
			return nil
		},
	}

	cmd.AddCommand(save, show, clear)
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your recent submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			reports, err := a.api.MyReports(context.Background())
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No reports yet.")
				return nil
			}
			for _, r := range reports {
				fmt.Printf("%-22s %-12s %s  %s (similar: %d)\n",
					r.CaseID, r.Status, r.Date.Format("2006-01-02"), r.Location, r.SimilarReportCount)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var district string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			stats, err := a.api.DashboardStats(context.Background(), map[string]string{"district": district})
			if err != nil {
				return err
			}
			fmt.Printf("Total cases:  %d\n", stats.TotalCases)
			fmt.Printf("Under review: %d\n", stats.UnderReview)
			fmt.Printf("Approved:     %d\n", stats.Approved)
			fmt.Printf("In progress:  %d\n", stats.InProgress)
			fmt.Printf("Completed:    %d\n", stats.Completed)
			fmt.Printf("Rejected:     %d\n", stats.Rejected)
			return nil
		},
	}
	cmd.Flags().StringVar(&district, "district", "", "filter by district")
	return cmd
}

func mockServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mock-serve",
		Short: "Run a local stand-in for the report API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			s, err := mockapi.New(cfg)
			if err != nil {
				return err
			}
			log.Printf("mock report API listening on :%d (user %s)", cfg.MockPort, cfg.MockUserEmail)
			return s.Start()
		},
	}
}
