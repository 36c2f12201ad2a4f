package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

type AssessCmd struct {
	AppFlags
	UserFlag
	Topic       string `short:"t" long:"topic" required:"yes" description:"topic to assess"`
	Grade       string `short:"g" long:"grade" required:"yes" description:"class or grade, e.g. JHS 2"`
	Subject     string `short:"s" long:"subject" required:"yes" description:"subject"`
	MCQ         int    `long:"mcq" default:"5" description:"number of multiple-choice questions"`
	ShortAnswer int    `long:"short" default:"2" description:"number of short-answer questions"`
	JSON        bool   `long:"json" description:"print the questions as JSON"`
}

func (c *AssessCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	assessments, _, err := a.orchestrators(auth.Static{UserID: c.User})
	if err != nil {
		return err
	}
	run, err := assessments.Run(ctx, orchestrator.AssessmentRequest{
		Topic:          c.Topic,
		GradeLevel:     c.Grade,
		Subject:        c.Subject,
		NumMCQ:         c.MCQ,
		NumShortAnswer: c.ShortAnswer,
	})
	if err != nil {
		return err
	}

	// The ToS is printed as it arrives; question snapshots are only kept
	// so the final one can be printed once the ToS is done.
	var last orchestrator.QuestionSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintln(stdout, "## Table of Specification")
		for {
			ev, err := run.ToS.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			switch ev.Kind {
			case stream.KindUpdate:
				fmt.Fprint(stdout, ev.Value)
			case stream.KindFail:
				return ev.Err
			}
		}
	})
	g.Go(func() error {
		snaps, err := stream.Collect(gctx, run.Questions)
		if n := len(snaps); n > 0 {
			last = snaps[n-1]
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	assessments.Wait()

	fmt.Fprint(stdout, "\n\n## Questions\n")
	if c.JSON {
		out, err := json.MarshalIndent(last, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(out))
	} else {
		printQuestions(last)
	}
	if rec, ok := run.Record(); ok {
		fmt.Fprintf(stdout, "\nsaved as %s\n", rec.ID)
	}
	return nil
}

func printQuestions(qs orchestrator.QuestionSet) {
	for i, q := range qs.Questions {
		fmt.Fprintf(stdout, "%d. [%s] %s\n", i+1, q.Type, q.Question)
		for j, opt := range q.Options {
			fmt.Fprintf(stdout, "   %c. %s\n", 'A'+j, opt)
		}
		fmt.Fprintf(stdout, "   answer: %s\n", strings.TrimSpace(q.Answer))
	}
}

type PlanCmd struct {
	AppFlags
	UserFlag
	Subject  string `short:"s" long:"subject" required:"yes" description:"subject"`
	Grade    string `short:"g" long:"grade" required:"yes" description:"class or form"`
	Topic    string `short:"t" long:"topic" required:"yes" description:"lesson topic"`
	Duration int    `long:"duration" default:"60" description:"lesson length in minutes"`
}

func (c *PlanCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	_, planner, err := a.orchestrators(auth.Static{UserID: c.User})
	if err != nil {
		return err
	}
	run, err := planner.Run(ctx, orchestrator.LessonPlanRequest{
		Subject:         c.Subject,
		GradeLevel:      c.Grade,
		Topic:           c.Topic,
		DurationMinutes: c.Duration,
	})
	if err != nil {
		return err
	}

	for ev := range run.Content.Events(ctx) {
		switch ev.Kind {
		case stream.KindUpdate:
			fmt.Fprint(stdout, ev.Value)
		case stream.KindFail:
			return ev.Err
		}
	}
	planner.Wait()
	fmt.Fprintln(stdout)
	if rec, ok := run.Record(); ok {
		fmt.Fprintf(stdout, "\nsaved as %s\n", rec.ID)
	}
	return nil
}
