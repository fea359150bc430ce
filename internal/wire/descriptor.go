package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FileName is the registered path of api/lwwdict.proto.
const FileName = "lwwdict.proto"

// File describes the messages and the Dictionary service. It is registered
// in protoregistry.GlobalFiles so gRPC reflection can serve it.
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("wire: invalid descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("wire: register descriptor: %v", err))
	}
	File = fd
}

// Descriptor returns the descriptor of the named message, e.g. "Entry".
func Descriptor(name string) (protoreflect.MessageDescriptor, bool) {
	md := File.Messages().ByName(protoreflect.Name(name))
	return md, md != nil
}

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	typeString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	typeBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	typeInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	typeBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	typeMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

func field(name string, num int32, typ fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func messageField(name string, num int32, msg string, repeated bool) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, typeMessage)
	f.TypeName = proto.String(".lwwdict." + msg)
	if repeated {
		f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	}
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(".lwwdict." + in),
		OutputType: proto.String(".lwwdict." + out),
	}
}

// fileDescriptorProto mirrors api/lwwdict.proto field for field.
func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	remove := message("RemoveRequest",
		field("key", 1, typeString),
		field("timestamp", 3, typeInt64),
	)
	remove.ReservedRange = []*descriptorpb.DescriptorProto_ReservedRange{
		{Start: proto.Int32(2), End: proto.Int32(3)},
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String("lwwdict"),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("lwwdict/internal/wire"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Entry",
				field("key", 1, typeString),
				field("payload", 2, typeBytes),
				field("timestamp", 3, typeInt64),
			),
			remove,
			message("KeyRequest",
				field("key", 1, typeString),
			),
			message("LookupResponse",
				field("visible", 1, typeBool),
				field("payload", 2, typeBytes),
				field("timestamp", 3, typeInt64),
			),
			message("State",
				messageField("add", 1, "Entry", true),
				messageField("remove", 2, "Entry", true),
				field("origin", 3, typeString),
			),
			message("StateRequest",
				field("from", 1, typeString),
			),
			message("MergeRequest",
				field("from", 1, typeString),
				messageField("state", 2, "State", false),
				field("full", 3, typeBool),
			),
			message("MergeResponse",
				field("adds", 1, typeInt64),
				field("removes", 2, typeInt64),
			),
			message("Empty"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Dictionary"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Add", "Entry", "Empty"),
				method("Update", "Entry", "Empty"),
				method("Remove", "RemoveRequest", "Empty"),
				method("Lookup", "KeyRequest", "LookupResponse"),
				method("Get", "KeyRequest", "LookupResponse"),
				method("State", "StateRequest", "State"),
				method("Merge", "MergeRequest", "MergeResponse"),
			},
		}},
	}
}
