package serializer

// Vector2 is a two-component float vector.
type Vector2 struct {
	X, Y float32
}

// Vector3 is a three-component float vector.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a rotation in X, Y, Z, W order.
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Color is an 8-bit RGB color.
type Color struct {
	R, G, B uint8
}

// Color32 is a floating point RGBA color.
type Color32 struct {
	R, G, B, A float32
}
