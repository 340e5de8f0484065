//go:build ignore

package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Seeds the default four-week drip templates. Run with:
//
//	go run scripts/seed_templates.go
type seedTemplate struct {
	channel string
	week    int
	subject string
	body    string
}

var seeds = []seedTemplate{
	{
		channel: "email",
		week:    1,
		subject: "{{firstName}}, your registration is waiting",
		body: `<p>Hi {{name}},</p>
<p>You started your company registration {{daysSinceSignup}} days ago but never finished.
Your details are saved and you can pick up right where you left off.</p>
<p><a href="https://regabilling.com/resume">Resume your registration</a></p>`,
	},
	{
		channel: "email",
		week:    2,
		subject: "Still thinking it over, {{firstName}}?",
		body: `<p>Hi {{name}},</p>
<p>Registering your company takes less than ten minutes. Here is what you get the moment you finish:</p>
<ul><li>Your incorporation certificate</li><li>GST registration</li><li>A dedicated accountant</li></ul>
<p><a href="https://regabilling.com/resume">Finish registering</a></p>`,
	},
	{
		channel: "email",
		week:    3,
		subject: "A small nudge about your company registration",
		body: `<p>Hi {{name}},</p>
<p>Founders who signed up the same week as you ({{signupDate}}) are already invoicing customers.
Your saved application expires soon.</p>
<p><a href="https://regabilling.com/resume">Complete it now</a></p>`,
	},
	{
		channel: "email",
		week:    4,
		subject: "Last reminder from us, {{firstName}}",
		body: `<p>Hi {{name}},</p>
<p>This is our last reminder about your unfinished registration. After this week we will
stop emailing you about it.</p>
<p><a href="https://regabilling.com/resume">Finish your registration</a></p>`,
	},
	{
		channel: "sms",
		week:    2,
		body:    `Hi {{firstName}}, your company registration is still waiting. Finish in 10 min: https://regabilling.com/r`,
	},
	{
		channel: "sms",
		week:    4,
		body:    `Last reminder {{firstName}}: your saved registration expires soon. https://regabilling.com/r`,
	},
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range seeds {
		_, err := db.ExecContext(ctx, `
			INSERT INTO templates (id, channel, campaign_week, subject_line, body, active, created_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		`, uuid.New().String(), s.channel, s.week, s.subject, s.body)
		if err != nil {
			log.Fatalf("insert %s week %d: %v", s.channel, s.week, err)
		}
		log.Printf("seeded %s template for week %d", s.channel, s.week)
	}
	log.Println("Done")
}
