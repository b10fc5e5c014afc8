// Package calc evaluates the arithmetic typed into the on-screen calculator.
package calc

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyExpression   = errors.New("empty expression")
	ErrInvalidExpression = errors.New("invalid expression")
)

// Evaluate computes expr with the usual precedence (* and / before + and -,
// left to right) and rounds the result to two decimals. Characters other than
// digits, operators and the decimal point are ignored.
func Evaluate(expr string) (decimal.Decimal, error) {
	clean := sanitize(expr)
	if clean == "" {
		return decimal.Zero, ErrEmptyExpression
	}
	p := &parser{src: clean}
	v, err := p.expr()
	if err != nil {
		return decimal.Zero, err
	}
	if p.pos != len(p.src) {
		return decimal.Zero, ErrInvalidExpression
	}
	return v.Round(2), nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("+-*/.", r):
			return r
		default:
			return -1
		}
	}, s)
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) expr() (decimal.Decimal, error) {
	left, err := p.term()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Add(right)
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (decimal.Decimal, error) {
	left, err := p.unary()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Mul(right)
		case '/':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return decimal.Zero, err
			}
			if right.IsZero() {
				return decimal.Zero, ErrInvalidExpression
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (decimal.Decimal, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return v.Neg(), err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.number()
}

func (p *parser) number() (decimal.Decimal, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." || dots > 1 {
		return decimal.Zero, ErrInvalidExpression
	}
	if strings.HasSuffix(lit, ".") {
		lit += "0"
	}
	if strings.HasPrefix(lit, ".") {
		lit = "0" + lit
	}
	v, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, ErrInvalidExpression
	}
	return v, nil
}
