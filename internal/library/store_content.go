package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const textColumns = "id, title, body, music_prompt, word_timestamps_json, music_audio IS NOT NULL, created_at, updated_at"

func scanText(scanner interface{ Scan(dest ...any) error }) (*Text, error) {
	var (
		id         int64
		title      sql.NullString
		body       string
		prompt     sql.NullString
		timestamps sql.NullString
		hasMusic   int
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &title, &body, &prompt, &timestamps, &hasMusic, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	text := &Text{
		ID:                 id,
		Title:              title.String,
		Body:               body,
		MusicPrompt:        prompt.String,
		WordTimestampsJSON: timestamps.String,
		HasMusic:           hasMusic != 0,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		text.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		text.UpdatedAt = updated
	}
	return text, nil
}

// CreateText inserts a new source document.
func (s *Store) CreateText(ctx context.Context, title, body string) (*Text, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("text body required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO texts (title, body, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		nullableString(strings.TrimSpace(title)),
		body,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert text: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetText(ctx, id)
}

// GetText fetches a text by identifier.
func (s *Store) GetText(ctx context.Context, id int64) (*Text, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+textColumns+` FROM texts WHERE id = ?`, id)
	text, err := scanText(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get text: %w", err)
	}
	return text, nil
}

// ListTexts returns all texts ordered by creation time.
func (s *Store) ListTexts(ctx context.Context) ([]*Text, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+textColumns+` FROM texts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list texts: %w", err)
	}
	defer rows.Close()

	var texts []*Text
	for rows.Next() {
		text, err := scanText(rows)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

// UpdateText persists title, body, and music prompt changes.
func (s *Store) UpdateText(ctx context.Context, text *Text) error {
	if text == nil {
		return errors.New("text is nil")
	}
	text.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE texts SET title = ?, body = ?, music_prompt = ?, updated_at = ? WHERE id = ?`,
		nullableString(text.Title),
		text.Body,
		nullableString(text.MusicPrompt),
		text.UpdatedAt.Format(time.RFC3339Nano),
		text.ID,
	); err != nil {
		return fmt.Errorf("update text: %w", err)
	}
	return nil
}

// RemoveText deletes a text and, via foreign keys, its segments, effects,
// jobs, and runs.
func (s *Store) RemoveText(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM texts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete text: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReplaceWordTimestamps overwrites the persisted alignment for a text.
// Passing an empty slice clears it.
func (s *Store) ReplaceWordTimestamps(ctx context.Context, textID int64, timestamps []WordTimestamp) error {
	var payload any
	if len(timestamps) > 0 {
		data, err := json.Marshal(timestamps)
		if err != nil {
			return fmt.Errorf("marshal word timestamps: %w", err)
		}
		payload = string(data)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE texts SET word_timestamps_json = ?, updated_at = ? WHERE id = ?`,
		payload,
		time.Now().UTC().Format(time.RFC3339Nano),
		textID,
	); err != nil {
		return fmt.Errorf("replace word timestamps: %w", err)
	}
	return nil
}

// SaveMusicAudio stores the downloaded music bed for a text, replacing any
// previous payload.
func (s *Store) SaveMusicAudio(ctx context.Context, textID int64, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("music audio payload required")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE texts SET music_audio = ?, updated_at = ? WHERE id = ?`,
		audio,
		time.Now().UTC().Format(time.RFC3339Nano),
		textID,
	); err != nil {
		return fmt.Errorf("save music audio: %w", err)
	}
	return nil
}

// ClearMusicAudio drops the stored music bed so a fresh prediction can be
// awaited without serving stale audio.
func (s *Store) ClearMusicAudio(ctx context.Context, textID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE texts SET music_audio = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		textID,
	); err != nil {
		return fmt.Errorf("clear music audio: %w", err)
	}
	return nil
}

// MusicAudio fetches the stored music bed. Returns nil when absent.
func (s *Store) MusicAudio(ctx context.Context, textID int64) ([]byte, error) {
	var audio []byte
	err := s.db.QueryRowContext(ctx, `SELECT music_audio FROM texts WHERE id = ?`, textID).Scan(&audio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get music audio: %w", err)
	}
	return audio, nil
}

// AddSpeechSegment stores one narrated chunk. Re-ingesting the same
// (text, sequence) pair replaces the previous payload. An empty payload
// registers a placeholder slot; the combiner skips those until audio lands.
func (s *Store) AddSpeechSegment(ctx context.Context, textID int64, sequence int, audio []byte, duration, trailingSilence float64) (*SpeechSegment, error) {
	if sequence < 0 {
		return nil, errors.New("segment sequence must be >= 0")
	}
	if audio == nil {
		audio = []byte{}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO speech_segments (text_id, sequence, audio, duration_seconds, trailing_silence, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(text_id, sequence) DO UPDATE SET
             audio = excluded.audio,
             duration_seconds = excluded.duration_seconds,
             trailing_silence = excluded.trailing_silence`,
		textID,
		sequence,
		audio,
		duration,
		trailingSilence,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert speech segment: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, text_id, sequence, audio, duration_seconds, trailing_silence, created_at
         FROM speech_segments WHERE text_id = ? AND sequence = ?`,
		textID, sequence,
	)
	return scanSegment(row)
}

func scanSegment(scanner interface{ Scan(dest ...any) error }) (*SpeechSegment, error) {
	var (
		seg        SpeechSegment
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&seg.ID, &seg.TextID, &seg.Sequence, &seg.Audio, &seg.DurationSeconds, &seg.TrailingSilence, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		seg.CreatedAt = created
	}
	return &seg, nil
}

// SpeechSegments returns a text's segments ordered by sequence, audio included.
func (s *Store) SpeechSegments(ctx context.Context, textID int64) ([]*SpeechSegment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, text_id, sequence, audio, duration_seconds, trailing_silence, created_at
         FROM speech_segments WHERE text_id = ? ORDER BY sequence`,
		textID,
	)
	if err != nil {
		return nil, fmt.Errorf("list speech segments: %w", err)
	}
	defer rows.Close()

	var segments []*SpeechSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

const effectColumns = "id, text_id, name, prompt, start_word, end_word, start_word_position, end_word_position, start_time, end_time, rank, audio, created_at, updated_at"

func scanEffect(scanner interface{ Scan(dest ...any) error }) (*SoundEffect, error) {
	var (
		effect     SoundEffect
		name       string
		prompt     string
		startWord  sql.NullString
		endWord    sql.NullString
		startPos   sql.NullInt64
		endPos     sql.NullInt64
		startTime  sql.NullFloat64
		endTime    sql.NullFloat64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&effect.ID,
		&effect.TextID,
		&name,
		&prompt,
		&startWord,
		&endWord,
		&startPos,
		&endPos,
		&startTime,
		&endTime,
		&effect.Rank,
		&effect.Audio,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	effect.Name = name
	effect.Prompt = prompt
	effect.StartWord = startWord.String
	effect.EndWord = endWord.String
	if startPos.Valid {
		v := int(startPos.Int64)
		effect.StartWordPosition = &v
	}
	if endPos.Valid {
		v := int(endPos.Int64)
		effect.EndWordPosition = &v
	}
	if startTime.Valid {
		v := startTime.Float64
		effect.StartTime = &v
	}
	if endTime.Valid {
		v := endTime.Float64
		effect.EndTime = &v
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		effect.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		effect.UpdatedAt = updated
	}
	return &effect, nil
}

// CreateSoundEffect inserts a cue definition. Audio arrives later via
// SetEffectAudio once generation completes.
func (s *Store) CreateSoundEffect(ctx context.Context, effect *SoundEffect) (*SoundEffect, error) {
	if effect == nil {
		return nil, errors.New("effect is nil")
	}
	if strings.TrimSpace(effect.Name) == "" {
		return nil, errors.New("effect name required")
	}
	if strings.TrimSpace(effect.Prompt) == "" {
		return nil, errors.New("effect prompt required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sound_effects (
            text_id, name, prompt, start_word, end_word,
            start_word_position, end_word_position, start_time, end_time,
            rank, audio, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		effect.TextID,
		effect.Name,
		effect.Prompt,
		nullableString(effect.StartWord),
		nullableString(effect.EndWord),
		nullableInt(effect.StartWordPosition),
		nullableInt(effect.EndWordPosition),
		nullableFloat(effect.StartTime),
		nullableFloat(effect.EndTime),
		effect.Rank,
		effect.Audio,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert sound effect: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSoundEffect(ctx, id)
}

// GetSoundEffect fetches a sound effect by identifier.
func (s *Store) GetSoundEffect(ctx context.Context, id int64) (*SoundEffect, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+effectColumns+` FROM sound_effects WHERE id = ?`, id)
	effect, err := scanEffect(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sound effect: %w", err)
	}
	return effect, nil
}

// SoundEffects returns a text's effects ordered by rank then id.
func (s *Store) SoundEffects(ctx context.Context, textID int64) ([]*SoundEffect, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+effectColumns+` FROM sound_effects WHERE text_id = ? ORDER BY rank, id`, textID)
	if err != nil {
		return nil, fmt.Errorf("list sound effects: %w", err)
	}
	defer rows.Close()

	var effects []*SoundEffect
	for rows.Next() {
		effect, err := scanEffect(rows)
		if err != nil {
			return nil, err
		}
		effects = append(effects, effect)
	}
	return effects, rows.Err()
}

// UpdateSoundEffect persists cue metadata changes, including resolved times.
func (s *Store) UpdateSoundEffect(ctx context.Context, effect *SoundEffect) error {
	if effect == nil {
		return errors.New("effect is nil")
	}
	effect.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sound_effects
         SET name = ?, prompt = ?, start_word = ?, end_word = ?,
             start_word_position = ?, end_word_position = ?, start_time = ?, end_time = ?,
             rank = ?, updated_at = ?
         WHERE id = ?`,
		effect.Name,
		effect.Prompt,
		nullableString(effect.StartWord),
		nullableString(effect.EndWord),
		nullableInt(effect.StartWordPosition),
		nullableInt(effect.EndWordPosition),
		nullableFloat(effect.StartTime),
		nullableFloat(effect.EndTime),
		effect.Rank,
		effect.UpdatedAt.Format(time.RFC3339Nano),
		effect.ID,
	); err != nil {
		return fmt.Errorf("update sound effect: %w", err)
	}
	return nil
}

// SetEffectAudio stores generated audio for an effect, replacing any previous
// payload.
func (s *Store) SetEffectAudio(ctx context.Context, id int64, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("effect audio payload required")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sound_effects SET audio = ?, updated_at = ? WHERE id = ?`,
		audio,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("set effect audio: %w", err)
	}
	return nil
}

// RemoveSoundEffect deletes an effect by identifier.
func (s *Store) RemoveSoundEffect(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM sound_effects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete sound effect: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const jobColumns = "id, job_type, job_id, text_id, prediction_id, status, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*GenerationJob, error) {
	var (
		job        GenerationJob
		jobType    string
		prediction sql.NullString
		status     string
		errMsg     sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&job.ID, &jobType, &job.JobID, &job.TextID, &prediction, &status, &errMsg, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job.Type = JobType(jobType)
	job.PredictionID = prediction.String
	job.Status = JobStatus(status)
	job.ErrorMessage = errMsg.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

// UpsertJob records a dispatched prediction under its job key, replacing any
// previous attempt for the same key.
func (s *Store) UpsertJob(ctx context.Context, jobType JobType, jobID, textID int64, predictionID string) (*GenerationJob, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO generation_jobs (job_type, job_id, text_id, prediction_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_type, job_id) DO UPDATE SET
             text_id = excluded.text_id,
             prediction_id = excluded.prediction_id,
             status = excluded.status,
             error_message = NULL,
             updated_at = excluded.updated_at`,
		jobType,
		jobID,
		textID,
		nullableString(predictionID),
		JobStatusStarting,
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}
	return s.JobByKey(ctx, jobType, jobID)
}

// JobByKey fetches a job by its (type, id) key.
func (s *Store) JobByKey(ctx context.Context, jobType JobType, jobID int64) (*GenerationJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE job_type = ? AND job_id = ?`, jobType, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus records the latest provider status for a job key.
func (s *Store) UpdateJobStatus(ctx context.Context, jobType JobType, jobID int64, status JobStatus, errorMessage string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE generation_jobs SET status = ?, error_message = ?, updated_at = ? WHERE job_type = ? AND job_id = ?`,
		status,
		nullableString(errorMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		jobType,
		jobID,
	); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// OpenJobs returns jobs whose predictions have not reached a terminal status,
// oldest first. The recovery sweep polls these against the provider.
func (s *Store) OpenJobs(ctx context.Context) ([]*GenerationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE status IN (?, ?) ORDER BY created_at`,
		JobStatusStarting,
		JobStatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
