package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dusk-indust/lessonforge/internal/export"
	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
)

type RenderCmd struct {
	HTML bool `long:"html" description:"render HTML instead of listing sections"`
	Args struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *RenderCmd) Execute([]string) error {
	data, err := os.ReadFile(c.Args.File)
	if err != nil {
		return err
	}
	doc := string(data)
	if c.HTML {
		out, err := sections.RenderHTML(doc)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(stdout, out)
		return err
	}

	secs := sections.ParseOrdered(doc)
	for _, s := range secs {
		fmt.Fprintf(stdout, "### %s\n", s.Title)
		if s.Body == "" {
			fmt.Fprintln(stdout, "(empty)")
		} else {
			fmt.Fprintln(stdout, s.Body)
		}
		fmt.Fprintln(stdout)
	}
	details := sections.Details(secs[0].Body)
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, k := range sections.DetailKeys {
		fmt.Fprintf(w, "%s\t%s\n", k, strings.ReplaceAll(details[k], "\n", " "))
	}
	return w.Flush()
}

type HistoryCmd struct {
	AppFlags
	UserFlag
	Kind      string `short:"k" long:"kind" default:"lesson-plans" choice:"assessments" choice:"lesson-plans" choice:"resources" description:"record kind"`
	Limit     int    `short:"n" long:"limit" default:"10" description:"page size"`
	PageToken string `long:"page-token" description:"continue after this record ID"`
}

func (c *HistoryCmd) Execute([]string) error {
	ctx := context.Background()
	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := store.ListOptions{Limit: c.Limit, PageToken: c.PageToken}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	var next string
	switch c.Kind {
	case "assessments":
		page, err := a.store.ListAssessments(ctx, c.User, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tCREATED\tSUBJECT\tCLASS\tTOPIC")
		for _, r := range page.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.DateTime), r.Subject, r.GradeLevel, r.Topic)
		}
		next = page.NextPageToken
	case "lesson-plans":
		page, err := a.store.ListLessonPlans(ctx, c.User, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tCREATED\tSUBJECT\tCLASS\tTOPIC\tMINUTES")
		for _, r := range page.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", r.ID, r.CreatedAt.Format(time.DateTime), r.Subject, r.GradeLevel, r.Topic, r.DurationMinutes)
		}
		next = page.NextPageToken
	case "resources":
		page, err := a.store.ListResources(ctx, c.User, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tCREATED\tTITLE\tSUBJECT\tTYPE")
		for _, r := range page.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.DateTime), r.Title, r.Subject, r.FileType)
		}
		next = page.NextPageToken
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(stdout, "\nnext page: --page-token %s\n", next)
	}
	return nil
}

type ExportCmd struct {
	AppFlags
	UserFlag
	Kind   string `short:"k" long:"kind" default:"assessment" choice:"assessment" choice:"lesson-plan" description:"record kind"`
	Format string `short:"F" long:"format" default:"md" choice:"md" choice:"json" choice:"html" choice:"mermaid" description:"output format; html and mermaid apply to lesson plans"`
	Args   struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`
}

func (c *ExportCmd) Execute([]string) error {
	ctx := context.Background()
	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := c.render(ctx, a.store)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err = fmt.Fprint(stdout, out)
	return err
}

func (c *ExportCmd) render(ctx context.Context, st store.Store) (string, error) {
	if c.Kind == "assessment" {
		rec, err := st.GetAssessment(ctx, c.User, c.Args.ID)
		if err != nil {
			return "", err
		}
		switch c.Format {
		case "md":
			return export.AssessmentMarkdown(rec)
		case "json":
			out, err := export.AssessmentJSON(rec)
			return string(out), err
		}
		return "", fmt.Errorf("format %q is not available for assessments", c.Format)
	}

	rec, err := st.GetLessonPlan(ctx, c.User, c.Args.ID)
	if err != nil {
		return "", err
	}
	switch c.Format {
	case "json":
		out, err := export.LessonPlanJSON(rec)
		return string(out), err
	case "html":
		return export.LessonPlanHTML(rec)
	case "mermaid":
		return export.LessonPlanMermaid(rec), nil
	}
	return export.LessonPlanMarkdown(rec), nil
}
