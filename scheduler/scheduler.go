package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/repository"
	"ai_tips_engine/services"
)

// 验证小时和分钟是否有效
func validateHourMinute(hour, minute int) (int, int) {
	if hour < 0 || hour > 23 {
		logger.Warn("无效的小时值，回退到凌晨3点", "hour", hour)
		hour = 3
	}
	if minute < 0 || minute > 59 {
		logger.Warn("无效的分钟值，回退到0分", "minute", minute)
		minute = 0
	}
	return hour, minute
}

// 计算下一个指定时间点
func getNextTimePoint(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// 任务类型
type TaskType int

const (
	TaskCacheEviction  TaskType = iota // 嵌入缓存过期清理
	TaskProfileRefresh                 // 过期画像兜底刷新
)

// 任务状态
type TaskStatus struct {
	LastRun     time.Time
	NextRun     time.Time
	IsRunning   bool
	Description string
}

// 任务调度器
type Scheduler struct {
	cfg   *config.Config
	tasks map[TaskType]*TaskStatus
	mutex sync.Mutex
}

// 创建新的调度器
func NewScheduler(cfg *config.Config) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		tasks: make(map[TaskType]*TaskStatus),
	}
}

// 启动调度器
func Start(cfg *config.Config) {
	scheduler := NewScheduler(cfg)
	scheduler.initTasks()
	go scheduler.run()

	logger.Info("调度器已启动", "check_interval_sec", cfg.Scheduler.CheckIntervalSec)
}

// 初始化任务
func (s *Scheduler) initTasks() {
	now := time.Now()

	// 嵌入缓存清理：每个检查周期执行一次
	evictInterval := time.Duration(s.cfg.Scheduler.CheckIntervalSec) * time.Second
	s.tasks[TaskCacheEviction] = &TaskStatus{
		LastRun:     now.Add(-evictInterval),
		NextRun:     now.Add(evictInterval),
		Description: "嵌入缓存过期清理",
	}

	// 画像兜底刷新：每天在指定时间点执行
	hour, minute := validateHourMinute(s.cfg.Scheduler.RefreshHour, s.cfg.Scheduler.RefreshMinute)
	nextRefresh := getNextTimePoint(now, hour, minute)
	s.tasks[TaskProfileRefresh] = &TaskStatus{
		LastRun:     nextRefresh.Add(-24 * time.Hour),
		NextRun:     nextRefresh,
		Description: fmt.Sprintf("过期画像兜底刷新 (%02d:%02d)", hour, minute),
	}

	logger.Info("定时任务初始化完成", "task_count", len(s.tasks))
}

// 主循环
func (s *Scheduler) run() {
	checkInterval := s.cfg.Scheduler.CheckIntervalSec
	if checkInterval <= 0 {
		checkInterval = 60
	}
	ticker := time.NewTicker(time.Duration(checkInterval) * time.Second)
	defer ticker.Stop()

	for now := range ticker.C {
		s.checkTasks(now)
	}
}

// 检查任务
func (s *Scheduler) checkTasks(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for taskType, status := range s.tasks {
		if status.IsRunning {
			continue
		}
		if status.NextRun.IsZero() {
			continue
		}
		if now.After(status.NextRun) || now.Equal(status.NextRun) {
			status.IsRunning = true
			go s.runTask(taskType, now)
		}
	}
}

// 运行任务
func (s *Scheduler) runTask(taskType TaskType, now time.Time) {
	defer func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		status := s.tasks[taskType]
		status.IsRunning = false
		status.LastRun = now

		// 更新下次运行时间
		switch taskType {
		case TaskCacheEviction:
			status.NextRun = now.Add(time.Duration(s.cfg.Scheduler.CheckIntervalSec) * time.Second)
		case TaskProfileRefresh:
			hour, minute := validateHourMinute(s.cfg.Scheduler.RefreshHour, s.cfg.Scheduler.RefreshMinute)
			status.NextRun = getNextTimePoint(now, hour, minute)
		}

		logger.Debug("任务执行完成", "task", status.Description, "next_run", status.NextRun.Format("2006-01-02 15:04:05"))
	}()

	switch taskType {
	case TaskCacheEviction:
		removed := services.Embedding().Cache().EvictStale()
		if removed > 0 {
			logger.Info("嵌入缓存清理完成", "removed", removed)
		}

	case TaskProfileRefresh:
		// 正常路径下画像在交互后同步重算，这里兜底处理中途失败留下的缺口
		users, err := repository.ListUsersWithStaleProfiles()
		if err != nil {
			logger.Error("查询过期画像用户失败", "error", err)
			return
		}
		if len(users) == 0 {
			logger.Info("没有需要刷新的画像")
			return
		}

		logger.Info("开始刷新过期画像", "count", len(users))
		refreshed := 0
		for _, userID := range users {
			if err := services.Preference().RecomputeProfile(context.Background(), userID); err != nil {
				logger.Warn("画像刷新失败", "user_id", userID, "error", err.Error())
				continue
			}
			refreshed++
		}
		logger.Info("过期画像刷新完成", "refreshed", refreshed, "total", len(users))
	}
}
