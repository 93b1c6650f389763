package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/app"
	"github.com/systap/systap/internal/config"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mSource    *systray.MenuItem
	mDevices   *systray.MenuItem
	mRecord    *systray.MenuItem
	mCopyPath  *systray.MenuItem

	// Device submenu items are created once and reused across rebuilds,
	// because systray cannot remove items. devIDs[i] is the device behind
	// devItems[i]; surplus items are hidden.
	devMu    sync.Mutex
	devItems []*systray.MenuItem
	devIDs   []string
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Start Capture")
	}
}

func (u *UI) SetCapturing() {
	u.updateStatus("capturing")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Stop Capture")
	}
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("System audio capture")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Capture", "Start or stop capturing")
	systray.AddSeparator()

	u.mSource = systray.AddMenuItem("Source", "Select what to capture")
	u.buildSourceMenu()

	u.mDevices = systray.AddMenuItem("Device", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	u.mRecord = systray.AddMenuItemCheckbox("Record to Disk", "Write captured audio to WAV files", u.cfg.RecordToDisk)
	u.mCopyPath = systray.AddMenuItem("Copy Recording Path", "Copy the last recording's path to the clipboard")

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About SysTap")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mAbout, mQuit)
}

func (u *UI) handleEvents(mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.ToggleCapture()
		case <-u.mRecord.ClickedCh:
			u.toggleRecord()
		case <-u.mCopyPath.ClickedCh:
			u.copyRecordingPath()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildSourceMenu() {
	sources := []struct {
		id   string
		name string
	}{
		{config.SourceLoopback, "System Output"},
		{config.SourceInput, "Microphone"},
	}

	sourceItems := make(map[string]*systray.MenuItem)

	for _, src := range sources {
		item := u.mSource.AddSubMenuItem(src.name, "")
		if src.id == u.cfg.Audio.Source {
			item.Check()
		}
		sourceItems[src.id] = item

		go func(sourceID, sourceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetSource(sourceID); err != nil {
					u.log.Error().Err(err).Msg("Failed to change source")
					continue
				}
				for id, itm := range sourceItems {
					if id != sourceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("source", sourceName).Msg("Changed capture source")
				u.buildDeviceMenu()
			}
		}(src.id, src.name, item)
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	u.devMu.Lock()
	defer u.devMu.Unlock()

	u.devIDs = u.devIDs[:0]
	for i, dev := range devices {
		u.devIDs = append(u.devIDs, dev.ID)
		if i < len(u.devItems) {
			// Reuse an item from a previous build.
			item := u.devItems[i]
			item.SetTitle(dev.Name)
			if dev.Default {
				item.Check()
			} else {
				item.Uncheck()
			}
			item.Show()
			continue
		}
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.Default {
			item.Check()
		}
		u.devItems = append(u.devItems, item)
		go u.watchDeviceItem(i, item)
	}
	for i := len(devices); i < len(u.devItems); i++ {
		u.devItems[i].Hide()
	}
}

func (u *UI) watchDeviceItem(index int, item *systray.MenuItem) {
	for range item.ClickedCh {
		id, ok := u.deviceAt(index)
		if !ok {
			continue // item belongs to a shorter, stale device list
		}
		if err := u.app.SetDevice(id); err != nil {
			u.log.Error().Err(err).Msg("Failed to change device")
			continue
		}
		u.devMu.Lock()
		for _, itm := range u.devItems {
			if itm != item {
				itm.Uncheck()
			}
		}
		item.Check()
		u.devMu.Unlock()
		u.log.Info().Str("device", id).Msg("Changed audio device")
	}
}

// deviceAt resolves a submenu index to the device it currently shows.
func (u *UI) deviceAt(index int) (string, bool) {
	u.devMu.Lock()
	defer u.devMu.Unlock()
	if index < 0 || index >= len(u.devIDs) {
		return "", false
	}
	return u.devIDs[index], true
}

func (u *UI) toggleRecord() {
	enabled := !u.cfg.RecordToDisk
	u.app.SetRecordToDisk(enabled)
	if enabled {
		u.mRecord.Check()
		u.log.Info().Msg("Enabled recording to disk")
	} else {
		u.mRecord.Uncheck()
		u.log.Info().Msg("Disabled recording to disk")
	}
}

func (u *UI) copyRecordingPath() {
	path := u.app.LastRecording()
	if path == "" {
		u.log.Info().Msg("No recording to copy yet")
		return
	}
	if err := clipboard.WriteAll(path); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy recording path")
		return
	}
	u.log.Info().Str("path", path).Msg("Copied recording path")
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("SysTap %s (%s)\nSystem audio capture\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with headphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎧 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "capturing":
		return "🔴" // Red - capturing
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
