package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/grade-market/internal/app"
	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/reconciler"
	"github.com/yourusername/grade-market/internal/service"
	"github.com/yourusername/grade-market/internal/settlement"
)

var (
	courseUser      string
	courseCode      string
	courseGrade     float64
	courseCompleted string
	resolveGrade    float64
	reconcileWatch  bool
)

func init() {
	courseAddCmd.Flags().StringVar(&courseUser, "user", "", "Identity key of the course owner")
	courseAddCmd.Flags().StringVar(&courseCode, "code", "", "Course code")
	courseAddCmd.Flags().Float64Var(&courseGrade, "grade", -1, "Final grade for a completed course")
	courseAddCmd.Flags().StringVar(&courseCompleted, "completed", "", "Completion date (YYYY-MM-DD) for a completed course")
	_ = courseAddCmd.MarkFlagRequired("user")
	_ = courseAddCmd.MarkFlagRequired("code")
	courseCmd.AddCommand(courseAddCmd)

	resolveCmd.Flags().StringVar(&courseUser, "user", "", "Identity key of the course owner")
	resolveCmd.Flags().StringVar(&courseCode, "code", "", "Course code")
	resolveCmd.Flags().Float64Var(&resolveGrade, "grade", -1, "Actual final grade")
	_ = resolveCmd.MarkFlagRequired("user")
	_ = resolveCmd.MarkFlagRequired("code")
	_ = resolveCmd.MarkFlagRequired("grade")

	reconcileCmd.Flags().BoolVar(&reconcileWatch, "watch", false, "Keep running on the configured schedule")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.UsesPostgres() {
			return fmt.Errorf("storage driver %q has no schema to migrate", cfg.Storage.Driver)
		}

		db, err := database.NewDB(cmd.Context(), &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := db.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("Schema is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Printf("Applied %s\n", v)
		}
		return nil
	},
}

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage ledger courses",
}

var courseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a course, optionally completed with a final grade",
	RunE: func(cmd *cobra.Command, args []string) error {
		course := &models.Course{Code: courseCode}
		if cmd.Flags().Changed("grade") {
			if !models.ValidGrade(courseGrade) {
				return fmt.Errorf("grade %v out of range [0,100]", courseGrade)
			}
			grade := courseGrade
			completed := time.Now().UTC()
			if courseCompleted != "" {
				t, err := time.Parse("2006-01-02", courseCompleted)
				if err != nil {
					return fmt.Errorf("invalid completion date: %w", err)
				}
				completed = t
			}
			course.Grade = &grade
			course.Past = true
			course.CompletedAt = &completed
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			user, err := a.Repos.Users.EnsureBySub(cmd.Context(), courseUser, "")
			if err != nil {
				return err
			}
			course.UserID = user.ID
			if err := a.Repos.Courses.Create(cmd.Context(), course); err != nil {
				return err
			}
			return printJSON(course)
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Record a course's final grade and settle its bets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			report, err := a.Coordinator.ResolveCourse(cmd.Context(), courseUser, courseCode, resolveGrade)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if report.Partial() {
				return fmt.Errorf("%s: %d bet(s) still pending", service.ReasonPartialFailure, len(report.Pending)+len(report.Failed))
			}
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle bets of resolved courses that are still pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			r := reconciler.NewReconciler(a.Coordinator, appLog)

			if !reconcileWatch {
				summary, err := r.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(summary.String())
				return nil
			}

			if err := r.Schedule(cfg.Reconciler.Schedule); err != nil {
				return err
			}
			if _, err := r.RunOnce(cmd.Context()); err != nil {
				appLog.WithError(err).Error("Initial settlement sweep failed")
			}
			if err := r.Start(); err != nil {
				return err
			}
			defer r.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Printf("Watching with schedule %q, next run at %s\n", cfg.Reconciler.Schedule, r.NextRun().Format(time.RFC3339))
			<-ctx.Done()
			return nil
		})
	},
}

var contractInfoCmd = &cobra.Command{
	Use:   "contract-info <address>",
	Short: "Show an escrow contract's balances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := settlement.NormalizeAddress(args[0])
		if err != nil {
			return err
		}

		gw := settlement.NewHTTPGateway(&cfg.Settlement, appLog)
		defer gw.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Settlement.Timeout()*3)
		defer cancel()

		info, err := gw.ContractInfo(ctx, address)
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}
