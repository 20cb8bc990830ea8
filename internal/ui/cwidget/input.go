package cwidget

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged func(T)

	Validator func(string) (T, error)
	Format    func(T) string
}

func newInput[T any](label, placeholder string, defaultValue T, format func(T) string, onChanged func(T)) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		OnChanged:    onChanged,
		DefaultValue: defaultValue,
		Format:       format,
	}

	input.labelWidget = widget.NewLabel(input.caption(defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
			input.labelWidget.SetText(input.caption(res))
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

func (item *Input[T]) caption(v T) string {
	return fmt.Sprintf("%s: %s", item.LabelText, item.Format(v))
}

func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue, strconv.Itoa, onChanged)

	input.Validator = func(s string) (res int, err error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		res, err = strconv.Atoi(s)
		if err != nil {
			return input.DefaultValue, errors.New("not an integer")
		}

		if res <= 0 {
			return input.DefaultValue, errors.New("must be positive")
		}

		return
	}

	return input
}

// NewFloatInput accepts values in [min, max].
func NewFloatInput(label, placeholder string, defaultValue, min, max float32, onChanged func(float32)) *Input[float32] {
	format := func(v float32) string { return strconv.FormatFloat(float64(v), 'f', 2, 32) }
	input := newInput(label, placeholder, defaultValue, format, onChanged)

	input.Validator = func(s string) (float32, error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return input.DefaultValue, errors.New("not a number")
		}

		res := float32(v)
		if res < min || res > max {
			return input.DefaultValue, fmt.Errorf("must be between %s and %s", format(min), format(max))
		}

		return res, nil
	}

	return input
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}
