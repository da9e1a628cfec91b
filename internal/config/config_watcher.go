package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch starts the fsnotify-backed hot-reload loop, falling back to polling
// if the filesystem watcher can't be created (e.g. inotify exhaustion).
func (cm *ConfigManager) Watch() {
	if cm.configPath == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		cm.startPollingWatcher()
		return
	}

	if err := watcher.Add(cm.configPath); err != nil {
		log.WithError(err).WithField("path", cm.configPath).Warn("failed to watch config file, falling back to polling")
		watcher.Close()
		cm.startPollingWatcher()
		return
	}

	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		log.WithError(err).WithField("dir", configDir).Warn("failed to watch config directory")
	}

	log.WithField("path", cm.configPath).Info("config file watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		const debounceDuration = 100 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == cm.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDuration, func() {
						cm.checkAndReload()
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config file watcher error")
			case <-cm.stopCh:
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			}
		}
	}()
}

func (cm *ConfigManager) startPollingWatcher() {
	ticker := time.NewTicker(5 * time.Second)
	log.WithField("interval", "5s").Info("config file watcher started using polling")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.checkAndReload()
			case <-cm.stopCh:
				return
			}
		}
	}()
}

func (cm *ConfigManager) checkAndReload() {
	if cm.configPath == "" {
		return
	}

	info, err := os.Stat(cm.configPath)
	if err != nil {
		return
	}

	cm.mu.RLock()
	stale := info.ModTime().After(cm.lastMod)
	cm.mu.RUnlock()
	if !stale {
		return
	}

	oldConfig := cm.GetConfig()
	if err := cm.load(); err != nil {
		log.WithError(err).WithField("path", cm.configPath).Warn("failed to reload config")
		return
	}
	newConfig := cm.GetConfig()

	cm.emitChange(oldConfig, newConfig)
	cm.logConfigChanges(oldConfig, newConfig)
}

func (cm *ConfigManager) logConfigChanges(old, new *Snapshot) {
	if old.Server.ListenAddr != new.Server.ListenAddr {
		log.WithFields(log.Fields{"field": "server.listen_addr", "old": old.Server.ListenAddr, "new": new.Server.ListenAddr}).Info("config changed")
	}
	if old.Debug != new.Debug {
		log.WithFields(log.Fields{"field": "debug", "old": old.Debug, "new": new.Debug}).Info("config changed")
	}
	if len(old.Credentials) != len(new.Credentials) {
		log.WithFields(log.Fields{"field": "credentials", "old_count": len(old.Credentials), "new_count": len(new.Credentials)}).Info("config changed")
	}
	if old.TLS.Mode != new.TLS.Mode {
		log.WithFields(log.Fields{"field": "tls.mode", "old": old.TLS.Mode, "new": new.TLS.Mode}).Info("config changed")
	}
}
