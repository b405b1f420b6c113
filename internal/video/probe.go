package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// trackInfo contains metadata about a video file's primary video track.
type trackInfo struct {
	Duration time.Duration
	Width    int
	Height   int
	Rotation int
}

func (a *FFmpegAsset) probe(ctx context.Context, path string) (*trackInfo, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Supervised like frame decoding: a hung ffprobe dies with the context.
	buf := &bytes.Buffer{}
	cmd := exec.Command("ffprobe", "-show_format", "-show_streams", "-of", "json", path)
	cmd.Stdout = buf

	if err := runWithContext(ctx, cmd); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeResult
	if err := json.Unmarshal(buf.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &trackInfo{}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height

		// Rotation lives in side data on modern files, in a tag on older ones.
		for _, sd := range stream.SideDataList {
			if sd.Rotation != 0 {
				info.Rotation = int(sd.Rotation)
			}
		}
		if info.Rotation == 0 && stream.Tags.Rotate != "" {
			if rot, err := strconv.Atoi(stream.Tags.Rotate); err == nil {
				info.Rotation = rot
			}
		}
		break
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
		Tags struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
	} `json:"streams"`
}
