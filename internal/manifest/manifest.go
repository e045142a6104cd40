// Package manifest records the final timeline of a render as JSON.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"videothingy/assembly-engine/internal/models"
)

// Scene is one row of the timeline.
type Scene struct {
	Index        int      `json:"index"`
	SceneID      string   `json:"scene_id"`
	StartTime    float64  `json:"start_time"`
	EndTime      float64  `json:"end_time"`
	Frames       int      `json:"frames"`
	ImagePath    string   `json:"image_path"`
	Placeholder  bool     `json:"placeholder,omitempty"`
	CameraEffect string   `json:"camera_effect,omitempty"`
	Effects      []string `json:"effects,omitempty"`
	AudioPaths   []string `json:"audio_paths"`
}

// Manifest is the whole render.
type Manifest struct {
	ProjectID     string    `json:"project_id"`
	FPS           int       `json:"fps"`
	TotalFrames   int       `json:"total_frames"`
	TotalDuration float64   `json:"total_duration"`
	AudioDuration float64   `json:"audio_duration"`
	TimeScale     float64   `json:"time_scale"`
	Crossfade     float64   `json:"crossfade_seconds"`
	MasterAudio   string    `json:"master_audio"`
	CaptionsPath  string    `json:"captions_path,omitempty"`
	OutputPath    string    `json:"output_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Scenes        []Scene   `json:"scenes"`
}

// New builds the manifest from the audio project, the allocated segments and
// the assets that fed them.
func New(project *models.AudioProject, segments []models.VideoSegment, assets []models.VisualAsset, fps int) Manifest {
	spans := project.SceneDurations()
	m := Manifest{
		ProjectID:     project.ID,
		FPS:           fps,
		AudioDuration: project.TotalDuration,
		TimeScale:     project.TimeScale(),
		Crossfade:     project.Crossfade,
		MasterAudio:   project.MasterAudioPath,
		CreatedAt:     time.Now().UTC(),
		Scenes:        make([]Scene, len(segments)),
	}
	for i, seg := range segments {
		sc := Scene{
			Index:      seg.Index,
			SceneID:    seg.SceneID,
			StartTime:  seg.Start,
			EndTime:    seg.Start + seg.Duration,
			Frames:     seg.Frames,
			ImagePath:  seg.ImagePath,
			AudioPaths: []string{},
		}
		if i < len(spans) && spans[i].SceneID == seg.SceneID {
			for _, u := range project.Segments[spans[i].FirstUnit : spans[i].FirstUnit+spans[i].Units] {
				sc.AudioPaths = append(sc.AudioPaths, u.ClipPath)
			}
		}
		if i < len(assets) {
			sc.Placeholder = assets[i].Placeholder
			sc.CameraEffect = assets[i].CameraEffect
		}
		for _, e := range seg.Effects {
			sc.Effects = append(sc.Effects, e.Name())
		}
		m.Scenes[i] = sc
		m.TotalFrames += seg.Frames
	}
	if fps > 0 {
		m.TotalDuration = float64(m.TotalFrames) / float64(fps)
	}
	return m
}

// Write stores m at path atomically: a temp file in the same directory is
// synced and renamed over the target.
func Write(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// Read loads a manifest written by Write.
func Read(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
