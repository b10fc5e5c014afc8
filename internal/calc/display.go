package calc

import "strings"

// ErrorText is what the display shows after a failed evaluation.
const ErrorText = "Error"

// Display is the keypad state of the calculator.
type Display struct {
	value string
}

func NewDisplay() *Display {
	return &Display{value: "0"}
}

func (d *Display) String() string {
	if d.value == "" {
		return "0"
	}
	return d.value
}

// Digit appends a digit, replacing a bare zero or an error.
func (d *Display) Digit(digit byte) {
	if digit < '0' || digit > '9' {
		return
	}
	if d.value == "" || d.value == "0" || d.value == ErrorText {
		d.value = string(digit)
		return
	}
	d.value += string(digit)
}

// Operator appends one of + - * / or the decimal point. Pressing one right
// after another replaces the previous.
func (d *Display) Operator(op byte) {
	if !strings.ContainsRune("+-*/.", rune(op)) {
		return
	}
	if d.value == ErrorText {
		return
	}
	cur := d.String()
	if strings.ContainsRune("+-*/.", rune(cur[len(cur)-1])) {
		d.value = cur[:len(cur)-1] + string(op)
		return
	}
	d.value = cur + string(op)
}

// Equals evaluates the display. On failure the display shows ErrorText.
func (d *Display) Equals() {
	v, err := Evaluate(d.String())
	if err != nil {
		if err == ErrEmptyExpression {
			return
		}
		d.value = ErrorText
		return
	}
	d.value = v.String()
}

func (d *Display) Clear() {
	d.value = "0"
}

func (d *Display) Backspace() {
	if d.value == ErrorText || len(d.value) <= 1 {
		d.value = "0"
		return
	}
	d.value = d.value[:len(d.value)-1]
}

// Press feeds a key label: a digit, an operator, "=", "C" or "<".
func (d *Display) Press(key string) {
	switch key {
	case "=":
		d.Equals()
	case "C":
		d.Clear()
	case "<":
		d.Backspace()
	default:
		if len(key) != 1 {
			return
		}
		if key[0] >= '0' && key[0] <= '9' {
			d.Digit(key[0])
			return
		}
		d.Operator(key[0])
	}
}
