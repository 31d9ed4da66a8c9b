package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fhirtab/fhirtab/internal/config"
	"github.com/fhirtab/fhirtab/internal/flatten"
	"github.com/fhirtab/fhirtab/internal/platform/fhir"
	"github.com/fhirtab/fhirtab/internal/platform/middleware"
	"github.com/fhirtab/fhirtab/internal/visualize"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhirtab-server",
		Short: "FHIR tabulation and charting service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(flattenCmd())
	rootCmd.AddCommand(chartCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tabulation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.AuthMode == "token" {
		e.Use(middleware.BearerAuth([]byte(cfg.AuthJWTSecret)))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	fhirGroup := e.Group("/fhir")
	flatten.NewHandler(logger, cfg.MaxBatch).RegisterRoutes(fhirGroup)

	chartGroup := e.Group("/charts")
	visualize.NewHandler(logger, visualize.Options{
		YLower: &cfg.ChartYLower,
		YUpper: &cfg.ChartYUpper,
		DPI:    cfg.ChartDPI,
	}).RegisterRoutes(chartGroup)

	// Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("server listening")
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func flattenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Flatten NDJSON resources into a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			resources, err := readNDJSON(in)
			if err != nil {
				return err
			}

			frame, err := flatten.FlattenResources(resources)
			if err != nil {
				return err
			}
			if frame == nil {
				return nil
			}
			if err := frame.ValidateColumns(); err != nil {
				return fmt.Errorf("flattened output failed validation: %w", err)
			}

			var rendered string
			switch format {
			case "csv":
				rendered = frame.Table().ToCSV()
			case "ndjson":
				rendered = frame.Table().ToNDJSON()
			case "json":
				b, err := json.MarshalIndent(frame.Table().ToJSON(), "", "  ")
				if err != nil {
					return err
				}
				rendered = string(b) + "\n"
			default:
				return fmt.Errorf("unknown format %q (want csv, json, or ndjson)", format)
			}

			return writeOutput(out, []byte(rendered))
		},
	}
	cmd.Flags().String("in", "-", "input NDJSON file (\"-\" for stdin)")
	cmd.Flags().String("format", "csv", "output format: csv, json, or ndjson")
	cmd.Flags().String("out", "-", "output file (\"-\" for stdout)")
	return cmd
}

func chartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render bar charts from NDJSON resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			in, _ := cmd.Flags().GetString("in")
			outDir, _ := cmd.Flags().GetString("out")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			users, _ := cmd.Flags().GetString("users")
			yLower, _ := cmd.Flags().GetFloat64("y-lower")
			yUpper, _ := cmd.Flags().GetFloat64("y-upper")
			separate, _ := cmd.Flags().GetBool("separate")
			dpi, _ := cmd.Flags().GetFloat64("dpi")

			opts := visualize.Options{DPI: dpi}
			if cmd.Flags().Changed("y-lower") {
				opts.YLower = &yLower
			}
			if cmd.Flags().Changed("y-upper") {
				opts.YUpper = &yUpper
			}
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("--start must be formatted as YYYY-MM-DD")
				}
				opts.StartDate = &t
			}
			if end != "" {
				t, err := time.Parse("2006-01-02", end)
				if err != nil {
					return fmt.Errorf("--end must be formatted as YYYY-MM-DD")
				}
				opts.EndDate = &t
			}
			if users != "" {
				opts.UserIDs = strings.Split(users, ",")
			}
			if separate {
				combine := false
				opts.Combine = &combine
			}

			resources, err := readNDJSON(in)
			if err != nil {
				return err
			}
			frame, err := flatten.FlattenResources(resources)
			if err != nil {
				return err
			}
			if frame == nil {
				return nil
			}

			charts, err := visualize.New(logger, opts).CreateStaticPlot(frame)
			if err != nil {
				return err
			}
			if len(charts) == 0 {
				return nil
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			for i, chart := range charts {
				name := fmt.Sprintf("chart-%d.png", i)
				if chart.UserID != "" {
					name = fmt.Sprintf("chart-%s.png", chart.UserID)
				}
				path := filepath.Join(outDir, name)
				if err := os.WriteFile(path, chart.PNG, 0o644); err != nil {
					return err
				}
				logger.Info().Str("path", path).Str("title", chart.Title).Msg("chart written")
			}
			return nil
		},
	}
	cmd.Flags().String("in", "-", "input NDJSON file (\"-\" for stdin)")
	cmd.Flags().String("out", ".", "output directory for PNG files")
	cmd.Flags().String("start", "", "inclusive start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "inclusive end date (YYYY-MM-DD)")
	cmd.Flags().String("users", "", "comma-separated user IDs to include")
	cmd.Flags().Float64("y-lower", 0, "Y-axis lower bound (default 50)")
	cmd.Flags().Float64("y-upper", 0, "Y-axis upper bound (default 1000)")
	cmd.Flags().Bool("separate", false, "one chart per user instead of a combined chart")
	cmd.Flags().Float64("dpi", 0, "image resolution (default 300)")
	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect registered column schemas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered resource types",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, rt := range flatten.RegisteredTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), string(rt))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <resource-type>",
		Short: "Show the required columns for a resource type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, err := flatten.RequiredColumns(flatten.ResourceType(args[0]))
			if err != nil {
				return err
			}
			for _, c := range columns {
				fmt.Fprintln(cmd.OutOrStdout(), string(c))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sql <resource-type>",
		Short: "Emit a CREATE VIEW statement for a resource type's flat shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmt, err := flatten.GenerateSQL(flatten.ResourceType(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), stmt)
			return nil
		},
	})

	return cmd
}

// readNDJSON reads one resource per line, skipping blank lines.
func readNDJSON(path string) ([]fhir.Resource, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var resources []fhir.Resource
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var res fhir.Resource
		if err := json.Unmarshal([]byte(text), &res); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		resources = append(resources, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return resources, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
