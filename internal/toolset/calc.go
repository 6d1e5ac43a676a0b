package toolset

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	calcAllowedChars = "0123456789+-*/(). "

	// maxExponent bounds integer powers so a short expression cannot
	// demand an enormous exact result.
	maxExponent = 4096
)

var (
	errInvalidChars   = errors.New("invalid characters in expression")
	errDivisionByZero = errors.New("division by zero")
)

// Evaluate computes an arithmetic expression using exact rational
// arithmetic. Only digits, decimal points, parentheses, spaces and the
// operators + - * / // ** are accepted.
//
// Precedence from loosest to tightest is + -, then * / //, then unary sign,
// then **, which is right-associative and binds its right operand's sign
// (-2**2 is -4, 2**-1 is 0.5). / is true division and // floors. Integer
// literals may not carry leading zeros.
func Evaluate(expr string) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", errors.New("empty expression")
	}
	for _, r := range expr {
		if !strings.ContainsRune(calcAllowedChars, r) {
			return "", errInvalidChars
		}
	}

	toks, err := lexCalc(expr)
	if err != nil {
		return "", err
	}
	p := &calcParser{toks: toks}
	v, err := p.sum()
	if err != nil {
		return "", err
	}
	if t := p.peek(); t.kind != calcEOF {
		return "", fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return formatValue(v), nil
}

type calcKind int

const (
	calcEOF calcKind = iota
	calcNumber
	calcPlus
	calcMinus
	calcMul
	calcDiv
	calcFloorDiv
	calcPow
	calcLParen
	calcRParen
)

var calcSymbols = map[byte]calcKind{
	'+': calcPlus, '-': calcMinus, '*': calcMul, '/': calcDiv, '(': calcLParen, ')': calcRParen,
}

type calcToken struct {
	kind calcKind
	text string
	pos  int
}

func lexCalc(expr string) ([]calcToken, error) {
	var toks []calcToken
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ':
			i++
		case c == '.' || (c >= '0' && c <= '9'):
			start := i
			for i < len(expr) && (expr[i] == '.' || (expr[i] >= '0' && expr[i] <= '9')) {
				i++
			}
			toks = append(toks, calcToken{kind: calcNumber, text: expr[start:i], pos: start})
		case c == '*' && strings.HasPrefix(expr[i:], "**"):
			toks = append(toks, calcToken{kind: calcPow, text: "**", pos: i})
			i += 2
		case c == '/' && strings.HasPrefix(expr[i:], "//"):
			toks = append(toks, calcToken{kind: calcFloorDiv, text: "//", pos: i})
			i += 2
		default:
			kind, ok := calcSymbols[c]
			if !ok {
				return nil, errInvalidChars
			}
			toks = append(toks, calcToken{kind: kind, text: string(c), pos: i})
			i++
		}
	}
	return append(toks, calcToken{kind: calcEOF, text: "end of expression", pos: len(expr)}), nil
}

type calcParser struct {
	toks []calcToken
	pos  int
}

func (p *calcParser) peek() calcToken { return p.toks[p.pos] }

func (p *calcParser) next() calcToken {
	t := p.toks[p.pos]
	if t.kind != calcEOF {
		p.pos++
	}
	return t
}

func (p *calcParser) sum() (constant.Value, error) {
	x, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		var op token.Token
		switch p.peek().kind {
		case calcPlus:
			op = token.ADD
		case calcMinus:
			op = token.SUB
		default:
			return x, nil
		}
		p.next()
		y, err := p.product()
		if err != nil {
			return nil, err
		}
		x = constant.BinaryOp(x, op, y)
	}
}

func (p *calcParser) product() (constant.Value, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != calcMul && kind != calcDiv && kind != calcFloorDiv {
			return x, nil
		}
		p.next()
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		switch kind {
		case calcMul:
			x = constant.BinaryOp(x, token.MUL, y)
		case calcDiv:
			if constant.Sign(y) == 0 {
				return nil, errDivisionByZero
			}
			// QUO on two ints yields an exact rational, not integer division.
			x = constant.BinaryOp(x, token.QUO, y)
		case calcFloorDiv:
			if constant.Sign(y) == 0 {
				return nil, errDivisionByZero
			}
			x = floorValue(constant.BinaryOp(x, token.QUO, y))
		}
	}
}

func (p *calcParser) unary() (constant.Value, error) {
	switch p.peek().kind {
	case calcPlus, calcMinus:
		op := token.ADD
		if p.next().kind == calcMinus {
			op = token.SUB
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return constant.UnaryOp(op, x, 0), nil
	}
	return p.power()
}

func (p *calcParser) power() (constant.Value, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != calcPow {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return pow(base, exp)
}

func (p *calcParser) atom() (constant.Value, error) {
	t := p.next()
	switch t.kind {
	case calcNumber:
		return parseNumber(t.text)
	case calcLParen:
		v, err := p.sum()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != calcRParen {
			return nil, fmt.Errorf("expected ) at offset %d, got %q", closing.pos, closing.text)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
}

func parseNumber(lit string) (constant.Value, error) {
	kind := token.INT
	if strings.Contains(lit, ".") {
		kind = token.FLOAT
	} else if len(lit) > 1 && lit[0] == '0' && strings.Trim(lit, "0") != "" {
		return nil, fmt.Errorf("leading zeros are not allowed in %s", lit)
	}
	v := constant.MakeFromLiteral(lit, kind, 0)
	if v.Kind() == constant.Unknown {
		return nil, fmt.Errorf("invalid number %s", lit)
	}
	return v, nil
}

// pow raises base to exp. Integral exponents stay exact; anything else goes
// through float64.
func pow(base, exp constant.Value) (constant.Value, error) {
	if n := constant.ToInt(exp); n.Kind() == constant.Int {
		e, ok := constant.Int64Val(n)
		if !ok || e > maxExponent || e < -maxExponent {
			return nil, fmt.Errorf("exponent %s too large", n.ExactString())
		}
		neg := e < 0
		if neg {
			if constant.Sign(base) == 0 {
				return nil, errDivisionByZero
			}
			e = -e
		}
		result := constant.MakeInt64(1)
		sq := base
		for ; e > 0; e >>= 1 {
			if e&1 == 1 {
				result = constant.BinaryOp(result, token.MUL, sq)
			}
			if e > 1 {
				sq = constant.BinaryOp(sq, token.MUL, sq)
			}
		}
		if neg {
			result = constant.BinaryOp(constant.MakeInt64(1), token.QUO, result)
		}
		return result, nil
	}

	b, _ := constant.Float64Val(base)
	x, _ := constant.Float64Val(exp)
	if b == 0 && x < 0 {
		return nil, errDivisionByZero
	}
	if b < 0 {
		return nil, errors.New("fractional power of a negative number has no real result")
	}
	r := math.Pow(b, x)
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return nil, errors.New("result out of range")
	}
	return constant.MakeFloat64(r), nil
}

// floorValue rounds v toward negative infinity.
func floorValue(v constant.Value) constant.Value {
	var r *big.Rat
	switch x := constant.Val(v).(type) {
	case int64:
		return v
	case *big.Int:
		return v
	case *big.Rat:
		r = x
	case *big.Float:
		r, _ = x.Rat(nil)
	default:
		return v
	}
	// Rat denominators are positive, so Euclidean division floors.
	q := new(big.Int).Div(r.Num(), r.Denom())
	return constant.Make(q)
}

func formatValue(v constant.Value) string {
	if i := constant.ToInt(v); i.Kind() == constant.Int {
		return i.ExactString()
	}
	f, _ := constant.Float64Val(v)
	return strconv.FormatFloat(f, 'g', -1, 64)
}
