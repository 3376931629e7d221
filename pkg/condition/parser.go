package condition

import "fmt"

type node interface {
	eval(vars map[string]any) (any, error)
}

type literalNode struct {
	value any
}

type pathNode struct {
	path string
}

type notNode struct {
	operand node
}

type negateNode struct {
	operand node
}

type logicalNode struct {
	op          tokenKind
	left, right node
}

type compareNode struct {
	op          tokenKind
	left, right node
}

// parser is a recursive-descent parser over the grammar
//
//	or      := and ('||' and)*
//	and     := cmp ('&&' cmp)*
//	cmp     := unary (cmpop unary)?
//	unary   := ('!' | '-') unary | primary
//	primary := number | string | true | false | null | path | '(' or ')'
type parser struct {
	tokens []token
	pos    int
}

func parse(input string) (node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	if p.peek().kind == tokenEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, tok)
	}

	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}

	return tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOr {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &logicalNode{op: tokenOr, left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAnd {
		p.next()

		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		left = &logicalNode{op: tokenAnd, left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	switch op := p.peek().kind; op {
	case tokenEq, tokenNeq, tokenStrictEq, tokenStrictNeq, tokenGt, tokenGte, tokenLt, tokenLte:
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &compareNode{op: op, left: left, right: right}, nil
	default:
		return left, nil
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokenNot:
		p.next()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &notNode{operand: operand}, nil
	case tokenMinus:
		p.next()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &negateNode{operand: operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()

	switch tok.kind {
	case tokenNumber:
		return &literalNode{value: tok.num}, nil
	case tokenString:
		return &literalNode{value: tok.text}, nil
	case tokenTrue:
		return &literalNode{value: true}, nil
	case tokenFalse:
		return &literalNode{value: false}, nil
	case tokenNull:
		return &literalNode{value: nil}, nil
	case tokenPath:
		return &pathNode{path: tok.text}, nil
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if closing := p.next(); closing.kind != tokenRParen {
			return nil, fmt.Errorf("%w: expected ')' but found %s", ErrSyntax, closing)
		}

		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, tok)
	}
}
