package migrations

import (
	"context"
	"time"

	"git.quorum.forum/qf/qf/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(InitialSchema{})
}

type InitialSchema struct{}

func (m InitialSchema) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2024, 2, 12, 9, 45, 0, 0, time.UTC))
}

func (m InitialSchema) Name() string {
	return "InitialSchema"
}

func (m InitialSchema) Description() string {
	return "Create the content, revision, moderation and notification tables"
}

func (m InitialSchema) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE qf_user (
			id SERIAL PRIMARY KEY,
			username VARCHAR(150) NOT NULL UNIQUE,
			email VARCHAR(254) NOT NULL DEFAULT '',
			date_joined TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_seen TIMESTAMP WITH TIME ZONE,
			status INT NOT NULL DEFAULT 1,
			is_moderator BOOLEAN NOT NULL DEFAULT FALSE,
			is_administrator BOOLEAN NOT NULL DEFAULT FALSE,
			email_tag_filter_strategy INT NOT NULL DEFAULT 0,
			display_tag_filter_strategy INT NOT NULL DEFAULT 0,
			interesting_wildcards TEXT NOT NULL DEFAULT '',
			ignored_wildcards TEXT NOT NULL DEFAULT '',
			subscribed_wildcards TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE user_language (
			user_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			language VARCHAR(16) NOT NULL,
			PRIMARY KEY (user_id, language)
		);

		CREATE TABLE thread (
			id SERIAL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			tagnames TEXT NOT NULL DEFAULT '',
			language VARCHAR(16) NOT NULL DEFAULT '',
			approved BOOLEAN NOT NULL DEFAULT TRUE,
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			answer_count INT NOT NULL DEFAULT 0,
			accepted_answer_id INT,
			last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_activity_by_id INT NOT NULL REFERENCES qf_user (id)
		);

		CREATE TABLE post (
			id SERIAL PRIMARY KEY,
			kind INT NOT NULL,
			thread_id INT REFERENCES thread (id) ON DELETE CASCADE,
			parent_id INT REFERENCES post (id),
			author_id INT NOT NULL REFERENCES qf_user (id),
			current_revision_id INT,
			added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_edited_at TIMESTAMP WITH TIME ZONE,
			last_edited_by_id INT REFERENCES qf_user (id),
			approved BOOLEAN NOT NULL DEFAULT TRUE,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			spam BOOLEAN NOT NULL DEFAULT FALSE,
			endorsed BOOLEAN NOT NULL DEFAULT FALSE,
			endorsed_at TIMESTAMP WITH TIME ZONE,
			endorsed_by_id INT REFERENCES qf_user (id),
			text TEXT NOT NULL DEFAULT '',
			html TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			language VARCHAR(16) NOT NULL DEFAULT '',
			points INT NOT NULL DEFAULT 0,
			vote_up_count INT NOT NULL DEFAULT 0,
			vote_down_count INT NOT NULL DEFAULT 0,
			comment_count INT NOT NULL DEFAULT 0
		);
		CREATE INDEX post_thread_id ON post (thread_id);
		CREATE INDEX post_parent_id ON post (parent_id);

		CREATE TABLE post_revision (
			id SERIAL PRIMARY KEY,
			post_id INT NOT NULL REFERENCES post (id) ON DELETE CASCADE,
			revision INT NOT NULL,
			author_id INT NOT NULL REFERENCES qf_user (id),
			revised_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			summary TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			approved_at TIMESTAMP WITH TIME ZONE,
			approved_by_id INT REFERENCES qf_user (id),
			title TEXT NOT NULL DEFAULT '',
			tagnames TEXT NOT NULL DEFAULT '',
			is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
			by_email BOOLEAN NOT NULL DEFAULT FALSE,
			email_address VARCHAR(254) NOT NULL DEFAULT '',
			ip_addr INET,
			UNIQUE (post_id, revision)
		);

		CREATE TABLE qf_group (
			id SERIAL PRIMARY KEY,
			name VARCHAR(150) NOT NULL UNIQUE,
			openness INT NOT NULL DEFAULT 0,
			moderate_answered_questions BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE group_membership (
			group_id INT NOT NULL REFERENCES qf_group (id) ON DELETE CASCADE,
			user_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			level INT NOT NULL DEFAULT 0,
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE post_to_group (
			post_id INT NOT NULL REFERENCES post (id) ON DELETE CASCADE,
			group_id INT NOT NULL REFERENCES qf_group (id) ON DELETE CASCADE,
			PRIMARY KEY (post_id, group_id)
		);

		CREATE TABLE tag (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			language VARCHAR(16) NOT NULL DEFAULT '',
			used_count INT NOT NULL DEFAULT 0,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (name, language)
		);

		CREATE TABLE tag_mark (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			tag_id INT NOT NULL REFERENCES tag (id) ON DELETE CASCADE,
			reason VARCHAR(16) NOT NULL,
			UNIQUE (user_id, tag_id)
		);

		CREATE TABLE subscription_rule (
			id SERIAL PRIMARY KEY,
			subscriber_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			feed_type VARCHAR(16) NOT NULL,
			frequency VARCHAR(8) NOT NULL,
			reported_at TIMESTAMP WITH TIME ZONE,
			UNIQUE (subscriber_id, feed_type)
		);

		CREATE TABLE thread_follow (
			user_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			thread_id INT NOT NULL REFERENCES thread (id) ON DELETE CASCADE,
			added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, thread_id)
		);

		CREATE TABLE activity (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES qf_user (id),
			activity_type INT NOT NULL,
			active_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			post_id INT REFERENCES post (id) ON DELETE CASCADE,
			revision_id INT REFERENCES post_revision (id) ON DELETE CASCADE,
			thread_id INT REFERENCES thread (id) ON DELETE CASCADE,
			summary TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX activity_type_revision ON activity (activity_type, revision_id);

		CREATE TABLE activity_recipient (
			activity_id INT NOT NULL REFERENCES activity (id) ON DELETE CASCADE,
			recipient_id INT NOT NULL REFERENCES qf_user (id) ON DELETE CASCADE,
			seen BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (activity_id, recipient_id)
		);
		CREATE INDEX activity_recipient_user ON activity_recipient (recipient_id);

		INSERT INTO qf_group (name) VALUES ('everyone');
	`)
	return err
}

func (m InitialSchema) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		DROP TABLE activity_recipient;
		DROP TABLE activity;
		DROP TABLE thread_follow;
		DROP TABLE subscription_rule;
		DROP TABLE tag_mark;
		DROP TABLE tag;
		DROP TABLE post_to_group;
		DROP TABLE group_membership;
		DROP TABLE qf_group;
		DROP TABLE post_revision;
		DROP TABLE post;
		DROP TABLE thread;
		DROP TABLE user_language;
		DROP TABLE qf_user;
	`)
	return err
}
