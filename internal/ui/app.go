package ui

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/afero"

	"livesense/internal/config"
	"livesense/internal/log"
	"livesense/internal/state"
	"livesense/internal/ui/cwidget"
	"livesense/processing/capture"
	"livesense/processing/recognition"
)

// SessionFactory builds a session that sends preview frames to preview.
type SessionFactory func(preview func(image.Image)) *recognition.Session

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	fs         afero.Fs
	configPath string
	display    *state.Display
	newSession SessionFactory

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	videoCanvas  *canvas.Image
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	audioLabel   *widget.Label
	videoLabel   *widget.Label

	frames chan image.Image

	mu      sync.Mutex
	session *recognition.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

func CreateApp(cfg *config.Config, fs afero.Fs, configPath string, display *state.Display, newSession SessionFactory) *DetectApp {
	a := app.New()
	w := a.NewWindow("livesense")

	w.Resize(fyne.NewSize(1200, 600))

	return &DetectApp{
		fyneApp:    a,
		mainWin:    w,
		config:     cfg,
		fs:         fs,
		configPath: configPath,
		display:    display,
		newSession: newSession,
		frames:     make(chan image.Image, 1),
	}
}

func (a *DetectApp) Run() {
	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})

	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	settingsLabel := widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	a.latencyLabel = widget.NewLabel(formatLatency(0))
	a.fpsLabel = widget.NewLabel(formatFPS(0))

	a.audioLabel = newResultLabel(a.display.Audio.Get())
	a.videoLabel = newResultLabel(a.display.Video.Get())
	go watchCell(a.display.Audio, a.audioLabel)
	go watchCell(a.display.Video, a.videoLabel)

	results := container.NewGridWithColumns(2,
		container.NewVBox(widget.NewLabel("Speech"), a.audioLabel),
		container.NewVBox(widget.NewLabel("Object"), a.videoLabel),
	)

	videoContainer := container.NewBorder(
		container.NewHBox(a.fpsLabel, widget.NewSeparator(), a.latencyLabel),
		results, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		widget.NewButtonWithIcon("Start Processing", theme.MediaPlayIcon(), func() {
			a.StartProcessing()
		}),
	)

	split := container.NewHSplit(
		container.NewPadded(sidebar),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	a.refreshSettingsUI(string(a.config.GetSource()))

	go a.runPlayerLoop()

	a.mainWin.SetCloseIntercept(func() {
		a.StopProcessing()
		if err := a.config.Save(a.fs, a.configPath); err != nil {
			log.Errorf("saving config: %v", err)
		}
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.StartProcessing()
	a.mainWin.ShowAndRun()
	a.StopProcessing()
}

// Quit closes the window from any goroutine.
func (a *DetectApp) Quit() {
	fyne.Do(func() { a.mainWin.Close() })
}

func newResultLabel(text string) *widget.Label {
	l := widget.NewLabelWithStyle(text, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	l.Importance = widget.HighImportance
	return l
}

func watchCell(c *state.Cell, l *widget.Label) {
	ch, _ := c.Watch()
	for v := range ch {
		fyne.Do(func() { l.SetText(v) })
	}
}

func (a *DetectApp) StopProcessing() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done, a.session = nil, nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *DetectApp) StartProcessing() {
	a.StopProcessing()

	if err := a.config.Validate(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	session := a.newSession(a.pushFrame)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.session, a.cancel, a.done = session, cancel, done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := session.Run(ctx); err != nil {
			fyne.Do(func() { dialog.ShowError(err, a.mainWin) })
		}
	}()
	go a.runStatLoop(session, done)
}

func (a *DetectApp) pushFrame(img image.Image) {
	select {
	case <-a.frames:
	default:
	}
	select {
	case a.frames <- img:
	default:
	}
}

func (a *DetectApp) runStatLoop(s *recognition.Session, done <-chan struct{}) {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			stats := s.VideoStats()
			fyne.Do(func() {
				a.latencyLabel.SetText(formatLatency(stats.Latency))
				a.fpsLabel.SetText(formatFPS(stats.FPS))
			})
		case <-done:
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func (a *DetectApp) runPlayerLoop() {
	displayFPS := time.Duration(max(a.config.GetFPS(), 1))
	displayTicker := time.NewTicker(time.Second / displayFPS)
	defer displayTicker.Stop()

	var lastFrame image.Image
	var shown image.Image

	for {
		select {
		case frame := <-a.frames:
			if frame != nil {
				lastFrame = frame
			}

		case <-displayTicker.C:
			if lastFrame != nil && lastFrame != shown {
				shown = lastFrame
				img := lastFrame
				fyne.Do(func() {
					a.videoCanvas.Image = img
					a.videoCanvas.Refresh()
				})
			}
		}
	}
}

func (a *DetectApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	thresholdInput := cwidget.NewFloatInput(
		"Speech threshold",
		"0.0 - 1.0",
		a.config.GetThreshold(),
		0, 1,
		func(p float32) {
			a.config.SetThreshold(p)
		},
	)

	boxes := widget.NewCheck("Draw boxes", func(b bool) {
		a.config.SetDrawBoxes(b)
	})
	boxes.SetChecked(a.config.GetDrawBoxes())

	applyCfg := widget.NewButton("Save config", func() {
		if err := a.config.Save(a.fs, a.configPath); err != nil {
			dialog.ShowError(err, a.mainWin)
			return
		}
		a.StartProcessing()
	})

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(thresholdInput)
	a.staticSettings.Add(boxes)

	a.staticSettings.Add(applyCfg)
}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.StopProcessing()

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.GetLocalPath())

		pathEntry.OnChanged = func(s string) {
			a.config.SetLocalPath(s)
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					path := reader.URI().Path()
					reader.Close()
					pathEntry.SetText(path)
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{"Loading cameras..."}, func(s string) {
			if s != "Loading cameras..." && s != "No cameras found" {
				a.config.SetWebcamDevice(s)
			}
		})
		deviceSelect.SetSelected("Loading cameras...")
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				} else if len(devices) == 0 {
					deviceSelect.Options = []string{"No cameras found"}
				} else {
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if id := a.config.GetWebcamDevice(); id != "" {
						deviceSelect.SetSelected(id)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
