package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/canvass-coach/backend/internal/config"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/practice"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/session"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	backend := flag.String("backend", "mock", "语音后端: mock, replay, live 或 alternate")
	scriptID := flag.String("script", script.DefaultScriptID, "练习脚本 ID")
	scriptsFile := flag.String("scripts", cfg.Session.ScriptsFile, "额外的脚本 YAML 文件")
	replayPath := flag.String("transcript", "", "replay 模式的 JSON 转写文件 (消息数组)")
	speed := flag.Float64("speed", 0, "replay 回放倍速，默认使用 REPLAY_SPEED")
	outputPath := flag.String("out", "", "结束时把最终快照写入该 JSON 文件")
	timeout := flag.Duration("timeout", 2*time.Minute, "会话最长运行时间")
	settle := flag.Duration("settle", 3*time.Second, "最后一条消息后等待评估完成的时间")

	flag.Parse()

	store := script.NewMemoryStore(script.Seed())
	if *scriptsFile != "" {
		loaded, err := script.LoadFile(*scriptsFile)
		if err != nil {
			log.Fatalf("加载脚本失败: %v", err)
		}
		store = script.NewMemoryStore(append(script.Seed(), loaded...))
	}

	coaches, err := cfg.NewCoachProvider(context.Background())
	if err != nil {
		log.Fatalf("教练初始化失败: %v", err)
	}

	opts := cfg.Voice.Options()
	if *speed > 0 {
		opts.Replay.Speed = *speed
	}

	req := practice.CreateRequest{ScriptID: *scriptID, Backend: *backend}
	if *replayPath != "" {
		req.Messages, err = readTranscript(*replayPath)
		if err != nil {
			log.Fatalf("读取转写文件失败: %v", err)
		}
	}

	svc := practice.NewService(store, coaches, opts)
	defer svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	info, err := svc.Create(ctx, req)
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}
	sess, err := svc.Get(info.ID)
	if err != nil {
		log.Fatalf("获取会话失败: %v", err)
	}

	log.Printf("开始会话测试: session=%s script=%s backend=%s", info.ID, info.ScriptID, info.Backend)

	final := run(ctx, sess, *settle)
	printSummary(final)

	if *outputPath != "" {
		data, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			log.Fatalf("序列化快照失败: %v", err)
		}
		if err := os.WriteFile(*outputPath, data, 0o644); err != nil {
			log.Fatalf("写入快照失败: %v", err)
		}
		log.Printf("最终快照已写入 %s", *outputPath)
	}
}

func readTranscript(path string) ([]transcript.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var messages []transcript.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return messages, nil
}

// run connects and prints each new message until the session goes quiet
// for settle, ends, or ctx expires.
func run(ctx context.Context, sess *session.Session, settle time.Duration) session.Snapshot {
	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	go func() {
		if err := sess.Connect(ctx); err != nil {
			log.Printf("连接失败: %v", err)
		}
	}()

	var (
		last    session.Snapshot
		printed int
		cues    int
		quiet   = time.NewTimer(settle)
	)
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("会话超时: %v", ctx.Err())
			return sess.Snapshot()
		case <-quiet.C:
			if (voice.StatusInfo{Status: last.Status}).Terminal() || len(last.Messages) > 0 {
				return sess.Snapshot()
			}
			quiet.Reset(settle)
		case snap, ok := <-updates:
			if !ok {
				return last
			}
			if snap.Status != last.Status {
				log.Printf("[status] %s %s", snap.Status, snap.Reason)
			}
			for _, msg := range snap.Messages[printed:] {
				log.Printf("[%s] %s", msg.Role.Label(), msg.Content)
			}
			for _, cue := range snap.Cues[cues:] {
				log.Printf("[cue:%s] %s", cue.Kind, cue.Text)
			}
			if len(snap.Messages) > printed || len(snap.Cues) > cues {
				quiet.Reset(settle)
			}
			printed = len(snap.Messages)
			cues = len(snap.Cues)
			last = snap
		}
	}
}

func printSummary(snap session.Snapshot) {
	log.Printf("会话结束: status=%s messages=%d current=%s", snap.Status, len(snap.Messages), snap.Category)
	for _, category := range snap.FeedbackSummary {
		log.Printf("[feedback:%s] ✅%d ⚠️%d ❓%d ℹ️%d", category.Category,
			category.Summary.Positive, category.Summary.Negative, category.Summary.Hint, category.Summary.Neutral)
		for id, item := range category.Feedback {
			log.Printf("  %s (%s): %s", id, item.Kind, strings.TrimSpace(item.Text))
		}
	}
}
