package config

import (
	"encoding/json"
	"os"

	"relaybot/internal/domain"
)

// LoadTriggers reads the trigger rule file (a JSON array). A missing file
// yields an empty rule set, not an error.
func LoadTriggers(path string) ([]domain.Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewDomainError("config.LoadTriggers", domain.ErrConfigLoad, "read %s: %v", path, err)
	}
	var triggers []domain.Trigger
	if err := json.Unmarshal(data, &triggers); err != nil {
		return nil, domain.NewDomainError("config.LoadTriggers", domain.ErrConfigLoad, "parse %s: %v", path, err)
	}
	return triggers, nil
}

// LoadCronTasks reads the cron task file (a JSON array). A missing file
// yields an empty task set, not an error.
func LoadCronTasks(path string) ([]domain.CronTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewDomainError("config.LoadCronTasks", domain.ErrConfigLoad, "read %s: %v", path, err)
	}
	var tasks []domain.CronTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, domain.NewDomainError("config.LoadCronTasks", domain.ErrConfigLoad, "parse %s: %v", path, err)
	}
	return tasks, nil
}
